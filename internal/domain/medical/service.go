package medical

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/homerev/api/pkg/pagination"
)

// DefaultProjectTypes is used when the store holds no project type list.
var DefaultProjectTypes = []string{"bimanueel", "VR"}

// HashID derives the medical store key of a patient. The medical store never
// sees account ids.
func HashID(patientID string) string {
	sum := sha256.Sum256([]byte(patientID))
	return hex.EncodeToString(sum[:])
}

type Service struct {
	repo  Repository
	now   func() time.Time
	newID func() string
}

func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// recordKey hashes the patient id and checks that the patient has a record.
func (s *Service) recordKey(ctx context.Context, patientID string) (string, error) {
	key := HashID(patientID)
	ok, err := s.repo.RecordExists(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: the patient with uid %s does not exist", ErrPatientNotFound, patientID)
	}
	return key, nil
}

// CreateRecord creates the empty record of a new patient.
func (s *Service) CreateRecord(ctx context.Context, patientID string) error {
	return s.repo.CreateRecord(ctx, HashID(patientID))
}

// DeleteRecord drops the patient's record with all tasks and todos. A
// missing record is not an error.
func (s *Service) DeleteRecord(ctx context.Context, patientID string) error {
	return s.repo.DeleteRecord(ctx, HashID(patientID))
}

func (s *Service) ProjectTypes(ctx context.Context, fallback []string) ([]string, error) {
	types, err := s.repo.ProjectTypes(ctx)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		if len(fallback) > 0 {
			return fallback, nil
		}
		return DefaultProjectTypes, nil
	}
	return types, nil
}

func listQuery(cur pagination.Cursor, typ string, f *Filter) (ListQuery, error) {
	q := ListQuery{Cursor: cur, Type: typ, Filter: f}
	if f != nil && typ != "" {
		return q, fmt.Errorf("%w: can only filter on one field", ErrInvalidFilter)
	}
	return q, nil
}

// -- Tasks --

func (s *Service) GetTask(ctx context.Context, patientID, taskID string) (*Task, error) {
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetTask(ctx, key, taskID)
}

func (s *Service) ListTasks(ctx context.Context, patientID string, cur pagination.Cursor, typ string, f *Filter) ([]*Task, error) {
	q, err := listQuery(cur, typ, f)
	if err != nil {
		return nil, err
	}
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTasks(ctx, key, q)
}

// TasksOfPatients returns up to perPatient tasks for each patient, in the
// order of patientIDs. A patient without a record fails the whole call.
func (s *Service) TasksOfPatients(ctx context.Context, patientIDs []string, perPatient int, typ string) ([][]*Task, error) {
	if perPatient <= 0 {
		return nil, fmt.Errorf("%w: number of tasks per patient must be positive", ErrInvalidInput)
	}
	if len(patientIDs) > pagination.MaxPerPage {
		return nil, fmt.Errorf("%w: at most %d patients per query", ErrInvalidInput, pagination.MaxPerPage)
	}
	out := make([][]*Task, 0, len(patientIDs))
	for _, id := range patientIDs {
		key, err := s.recordKey(ctx, id)
		if err != nil {
			return nil, err
		}
		tasks, err := s.repo.ListTasks(ctx, key, ListQuery{Cursor: pagination.First(perPatient), Type: typ})
		if err != nil {
			return nil, err
		}
		out = append(out, tasks)
	}
	return out, nil
}

func (in TaskInput) validate() error {
	if strings.TrimSpace(in.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidInput)
	}
	if in.Task == nil {
		return fmt.Errorf("%w: task is required", ErrInvalidInput)
	}
	return nil
}

// AddTask stores a new task and returns its id.
func (s *Service) AddTask(ctx context.Context, patientID string, in TaskInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	t := &Task{ID: s.newID(), Patient: key, Type: in.Type, DateCreated: s.now(), Task: in.Task}
	if err := s.repo.InsertTask(ctx, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *Service) UpdateTask(ctx context.Context, patientID, taskID string, in TaskInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateTask(ctx, &Task{ID: taskID, Patient: key, Type: in.Type, Task: in.Task}); err != nil {
		return "", err
	}
	return taskID, nil
}

func (s *Service) DeleteTask(ctx context.Context, patientID, taskID string) (string, error) {
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	if err := s.repo.DeleteTask(ctx, key, taskID); err != nil {
		return "", err
	}
	return taskID, nil
}

// -- Todos --

func (s *Service) GetTodo(ctx context.Context, patientID, todoID string) (*Todo, error) {
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetTodo(ctx, key, todoID)
}

func (s *Service) ListTodos(ctx context.Context, patientID string, cur pagination.Cursor, typ string, f *Filter) ([]*Todo, error) {
	q, err := listQuery(cur, typ, f)
	if err != nil {
		return nil, err
	}
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListTodos(ctx, key, q)
}

func (in TodoInput) validate() error {
	if strings.TrimSpace(in.Type) == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidInput)
	}
	if in.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline is required", ErrInvalidInput)
	}
	if in.Todo == nil {
		return fmt.Errorf("%w: todo is required", ErrInvalidInput)
	}
	return nil
}

func (s *Service) AddTodo(ctx context.Context, patientID string, in TodoInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	t := &Todo{ID: s.newID(), Patient: key, Type: in.Type, DateCreated: s.now(), Deadline: in.Deadline, Todo: in.Todo}
	if err := s.repo.InsertTodo(ctx, t); err != nil {
		return "", err
	}
	return t.ID, nil
}

func (s *Service) UpdateTodo(ctx context.Context, patientID, todoID string, in TodoInput) (string, error) {
	if err := in.validate(); err != nil {
		return "", err
	}
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	if err := s.repo.UpdateTodo(ctx, &Todo{ID: todoID, Patient: key, Type: in.Type, Deadline: in.Deadline, Todo: in.Todo}); err != nil {
		return "", err
	}
	return todoID, nil
}

func (s *Service) DeleteTodo(ctx context.Context, patientID, todoID string) (string, error) {
	key, err := s.recordKey(ctx, patientID)
	if err != nil {
		return "", err
	}
	if err := s.repo.DeleteTodo(ctx, key, todoID); err != nil {
		return "", err
	}
	return todoID, nil
}
