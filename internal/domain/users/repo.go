package users

import (
	"context"
	"errors"

	"github.com/homerev/api/pkg/pagination"
)

var (
	ErrPatientNotFound   = errors.New("patient not found")
	ErrTherapistNotFound = errors.New("therapist not found")
	ErrCursorNotFound    = errors.New("pagination cursor document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrAlreadyExists     = errors.New("profile already exists")
	// ErrStore wraps failures of the users database itself.
	ErrStore = errors.New("users store failure")
)

type PatientRepository interface {
	GetPatient(ctx context.Context, id string) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) error
	UpdatePatient(ctx context.Context, p *Patient) error
	DeletePatient(ctx context.Context, id string) error
	// ListByTherapist returns one page of the patients whose therapist list
	// contains therapistID, ordered by (name, id). namePrefix is matched
	// case-sensitively; empty matches every name.
	ListByTherapist(ctx context.Context, therapistID string, cur pagination.Cursor, namePrefix string) ([]*Patient, error)
	// CohortIDs returns up to limit patient ids matching the cohort, ordered by id.
	CohortIDs(ctx context.Context, limit int, c Cohort) ([]string, error)
}

type TherapistRepository interface {
	GetTherapist(ctx context.Context, id string) (*Therapist, error)
	CreateTherapist(ctx context.Context, t *Therapist) error
	UpdateTherapist(ctx context.Context, t *Therapist) error
	// DeleteTherapist removes the therapist and drops it from every
	// patient's therapist list.
	DeleteTherapist(ctx context.Context, id string) error
}

type Repository interface {
	PatientRepository
	TherapistRepository
}
