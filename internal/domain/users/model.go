package users

import (
	"fmt"
	"strings"
	"time"
)

// Gender codes as stored and exposed by the API.
const (
	GenderMale        = "M"
	GenderFemale      = "V"
	GenderUnspecified = "X"
)

func validGender(g string) bool {
	return g == GenderMale || g == GenderFemale || g == GenderUnspecified
}

// Patient maps to the patients table.
type Patient struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Birthdate time.Time `db:"birthdate" json:"birthdate"`
	Address   string    `db:"address" json:"address"`
	Condition string    `db:"condition" json:"condition"`
	Telephone string    `db:"telephone" json:"telephone"`
	Email     string    `db:"email" json:"email"`
	Gender    string    `db:"gender" json:"gender"`

	// Therapists holds the ids of the supervising therapists. It is the only
	// source of therapist/patient relationship facts.
	Therapists []string  `db:"therapists" json:"therapists"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// HasTherapist reports whether therapistID supervises the patient.
func (p *Patient) HasTherapist(therapistID string) bool {
	for _, t := range p.Therapists {
		if t == therapistID {
			return true
		}
	}
	return false
}

// Therapist maps to the therapists table.
type Therapist struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Birthdate time.Time `db:"birthdate" json:"birthdate"`
	Address   string    `db:"address" json:"address"`
	Email     string    `db:"email" json:"email"`
	Telephone string    `db:"telephone" json:"telephone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PatientInput carries the PatientInput GraphQL object.
type PatientInput struct {
	Email     string
	Password  string
	Name      string
	Birthdate time.Time
	Address   string
	Condition string
	Telephone string
	Gender    string
}

func (in PatientInput) validate(requirePassword bool) error {
	var problems []string
	if strings.TrimSpace(in.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !strings.Contains(in.Email, "@") {
		problems = append(problems, "a valid email is required")
	}
	if requirePassword && len(in.Password) < MinPasswordLength {
		problems = append(problems, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if in.Birthdate.IsZero() {
		problems = append(problems, "birthdate is required")
	}
	if !validGender(in.Gender) {
		problems = append(problems, "gender must be one of M, V, X")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(problems, "; "))
	}
	return nil
}

// TherapistInput carries the TherapistInput GraphQL object.
type TherapistInput struct {
	Name      string
	Birthdate time.Time
	Address   string
	Telephone string
}

func (in TherapistInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.Birthdate.IsZero() {
		return fmt.Errorf("%w: birthdate is required", ErrInvalidInput)
	}
	return nil
}

// Cohort narrows the patients whose tasks are aggregated for research
// queries. Zero fields do not filter.
type Cohort struct {
	Gender     string
	BornAfter  *time.Time
	BornBefore *time.Time
	Condition  string
}
