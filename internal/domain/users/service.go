package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/pkg/pagination"
)

// MinPasswordLength is the shortest password the identity provider accepts.
const MinPasswordLength = 6

// IdentityProvider manages the login accounts behind patient and therapist
// profiles. Account ids double as profile ids.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
	SetRole(ctx context.Context, uid string, role auth.Role) error
	DeleteAccount(ctx context.Context, uid string) error
}

// MedicalRecords owns the per-patient medical document.
type MedicalRecords interface {
	CreateRecord(ctx context.Context, patientID string) error
	DeleteRecord(ctx context.Context, patientID string) error
}

type Service struct {
	repo    Repository
	idp     IdentityProvider
	records MedicalRecords
	logger  zerolog.Logger
}

func NewService(repo Repository, idp IdentityProvider, records MedicalRecords) *Service {
	return &Service{repo: repo, idp: idp, records: records, logger: zerolog.Nop()}
}

// SetLogger attaches the logger used to report failed compensations.
func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "users").Logger()
}

func (s *Service) GetPatient(ctx context.Context, id string) (*Patient, error) {
	return s.repo.GetPatient(ctx, id)
}

func (s *Service) GetTherapist(ctx context.Context, id string) (*Therapist, error) {
	return s.repo.GetTherapist(ctx, id)
}

// IsTherapistOfPatient reads the patient record and reports whether
// therapistID is on its therapist list. A missing patient is an error.
func (s *Service) IsTherapistOfPatient(ctx context.Context, therapistID, patientID string) (bool, error) {
	p, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return false, err
	}
	return p.HasTherapist(therapistID), nil
}

// TherapistsOfPatient resolves every therapist on the patient's list. A
// dangling id fails the whole lookup.
func (s *Service) TherapistsOfPatient(ctx context.Context, patientID string) ([]*Therapist, error) {
	p, err := s.repo.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.TherapistsByIDs(ctx, p.Therapists)
}

func (s *Service) TherapistsByIDs(ctx context.Context, ids []string) ([]*Therapist, error) {
	out := make([]*Therapist, 0, len(ids))
	for _, id := range ids {
		t, err := s.repo.GetTherapist(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Service) PatientsOfTherapist(ctx context.Context, therapistID string, cur pagination.Cursor, namePrefix string) ([]*Patient, error) {
	if _, err := s.repo.GetTherapist(ctx, therapistID); err != nil {
		return nil, err
	}
	return s.repo.ListByTherapist(ctx, therapistID, cur, namePrefix)
}

// CohortPatientIDs selects up to limit patients for an aggregate query.
// Limits above pagination.MaxPerPage are rejected.
func (s *Service) CohortPatientIDs(ctx context.Context, limit int, c Cohort) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: number of patients must be positive", ErrInvalidInput)
	}
	if limit > pagination.MaxPerPage {
		return nil, fmt.Errorf("%w: number of patients must be at most %d", ErrInvalidInput, pagination.MaxPerPage)
	}
	if c.Gender != "" && !validGender(c.Gender) {
		return nil, fmt.Errorf("%w: gender must be one of M, V, X", ErrInvalidInput)
	}
	return s.repo.CohortIDs(ctx, limit, c)
}

// CreatePatient creates the login account, the profile supervised by
// therapistID and the empty medical record. Steps already taken are undone
// when a later one fails.
func (s *Service) CreatePatient(ctx context.Context, therapistID string, in PatientInput) (*Patient, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := in.validate(true); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTherapist(ctx, therapistID); err != nil {
		return nil, err
	}

	uid, err := s.idp.CreateAccount(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	p := &Patient{
		ID:         uid,
		Name:       in.Name,
		Birthdate:  in.Birthdate,
		Address:    in.Address,
		Condition:  in.Condition,
		Telephone:  in.Telephone,
		Email:      in.Email,
		Gender:     in.Gender,
		Therapists: []string{therapistID},
	}

	if err := s.idp.SetRole(ctx, uid, auth.RolePatient); err != nil {
		s.undoAccount(ctx, uid)
		return nil, fmt.Errorf("assign patient role: %w", err)
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		s.undoAccount(ctx, uid)
		return nil, err
	}
	if err := s.records.CreateRecord(ctx, uid); err != nil {
		if derr := s.repo.DeletePatient(ctx, uid); derr != nil {
			s.logger.Error().Err(derr).Str("patient", uid).Msg("failed to remove profile after medical record failure")
		}
		s.undoAccount(ctx, uid)
		return nil, fmt.Errorf("create medical record: %w", err)
	}

	s.logger.Info().Str("patient", uid).Str("therapist", therapistID).Msg("patient created")
	return p, nil
}

func (s *Service) undoAccount(ctx context.Context, uid string) {
	if err := s.idp.DeleteAccount(ctx, uid); err != nil {
		s.logger.Error().Err(err).Str("account", uid).Msg("failed to remove orphaned account")
	}
}

// UpdatePatient overwrites the profile fields. Therapist links and the
// password are not touched.
func (s *Service) UpdatePatient(ctx context.Context, id string, in PatientInput) (*Patient, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := in.validate(false); err != nil {
		return nil, err
	}
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = in.Name
	p.Birthdate = in.Birthdate
	p.Address = in.Address
	p.Condition = in.Condition
	p.Telephone = in.Telephone
	p.Email = in.Email
	p.Gender = in.Gender
	if err := s.repo.UpdatePatient(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the medical record, the account and then the
// profile. Missing records and accounts count as removed, so a failed delete
// can be retried while the profile still exists.
func (s *Service) DeletePatient(ctx context.Context, id string) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.records.DeleteRecord(ctx, id); err != nil {
		return nil, fmt.Errorf("delete medical record: %w", err)
	}
	if err := s.idp.DeleteAccount(ctx, id); err != nil {
		return nil, fmt.Errorf("delete account: %w", err)
	}
	if err := s.repo.DeletePatient(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateTherapist(ctx context.Context, id string, in TherapistInput) (*Therapist, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	t, err := s.repo.GetTherapist(ctx, id)
	if err != nil {
		return nil, err
	}
	t.Name = in.Name
	t.Birthdate = in.Birthdate
	t.Address = in.Address
	t.Telephone = in.Telephone
	if err := s.repo.UpdateTherapist(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// DeleteTherapist deletes the account, then removes the profile and unlinks
// it from its patients.
func (s *Service) DeleteTherapist(ctx context.Context, id string) (*Therapist, error) {
	t, err := s.repo.GetTherapist(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.idp.DeleteAccount(ctx, id); err != nil {
		return nil, fmt.Errorf("delete account: %w", err)
	}
	if err := s.repo.DeleteTherapist(ctx, id); err != nil {
		return nil, err
	}
	return t, nil
}

// ProvisionTherapist grants the therapist role to an existing account and
// stores its profile. Therapists are not created through the API.
func (s *Service) ProvisionTherapist(ctx context.Context, uid, email string, in TherapistInput) (*Therapist, error) {
	if strings.TrimSpace(uid) == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.idp.SetRole(ctx, uid, auth.RoleTherapist); err != nil {
		return nil, fmt.Errorf("assign therapist role: %w", err)
	}
	t := &Therapist{
		ID:        uid,
		Name:      in.Name,
		Birthdate: in.Birthdate,
		Address:   in.Address,
		Email:     strings.TrimSpace(email),
		Telephone: in.Telephone,
	}
	if err := s.repo.CreateTherapist(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
