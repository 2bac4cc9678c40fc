package graph

import (
	"context"

	"github.com/homerev/api/internal/domain/medical"
	"github.com/homerev/api/internal/domain/users"
	"github.com/homerev/api/pkg/pagination"
)

// UserService is the part of users.Service the resolvers use.
type UserService interface {
	GetPatient(ctx context.Context, id string) (*users.Patient, error)
	GetTherapist(ctx context.Context, id string) (*users.Therapist, error)
	TherapistsOfPatient(ctx context.Context, patientID string) ([]*users.Therapist, error)
	TherapistsByIDs(ctx context.Context, ids []string) ([]*users.Therapist, error)
	PatientsOfTherapist(ctx context.Context, therapistID string, cur pagination.Cursor, namePrefix string) ([]*users.Patient, error)
	CohortPatientIDs(ctx context.Context, limit int, c users.Cohort) ([]string, error)
	CreatePatient(ctx context.Context, therapistID string, in users.PatientInput) (*users.Patient, error)
	UpdatePatient(ctx context.Context, id string, in users.PatientInput) (*users.Patient, error)
	DeletePatient(ctx context.Context, id string) (*users.Patient, error)
	UpdateTherapist(ctx context.Context, id string, in users.TherapistInput) (*users.Therapist, error)
	DeleteTherapist(ctx context.Context, id string) (*users.Therapist, error)
}

// MedicalService is the part of medical.Service the resolvers use.
type MedicalService interface {
	GetTask(ctx context.Context, patientID, taskID string) (*medical.Task, error)
	ListTasks(ctx context.Context, patientID string, cur pagination.Cursor, typ string, f *medical.Filter) ([]*medical.Task, error)
	TasksOfPatients(ctx context.Context, patientIDs []string, perPatient int, typ string) ([][]*medical.Task, error)
	AddTask(ctx context.Context, patientID string, in medical.TaskInput) (string, error)
	UpdateTask(ctx context.Context, patientID, taskID string, in medical.TaskInput) (string, error)
	DeleteTask(ctx context.Context, patientID, taskID string) (string, error)

	GetTodo(ctx context.Context, patientID, todoID string) (*medical.Todo, error)
	ListTodos(ctx context.Context, patientID string, cur pagination.Cursor, typ string, f *medical.Filter) ([]*medical.Todo, error)
	AddTodo(ctx context.Context, patientID string, in medical.TodoInput) (string, error)
	UpdateTodo(ctx context.Context, patientID, todoID string, in medical.TodoInput) (string, error)
	DeleteTodo(ctx context.Context, patientID, todoID string) (string, error)
}

var (
	_ UserService    = (*users.Service)(nil)
	_ MedicalService = (*medical.Service)(nil)
)
