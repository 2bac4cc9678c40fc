package medical

import (
	"context"
	"errors"
)

var (
	ErrPatientNotFound = errors.New("medical record not found")
	ErrTaskNotFound    = errors.New("task not found")
	ErrTodoNotFound    = errors.New("todo not found")
	ErrCursorNotFound  = errors.New("pagination cursor document not found")
	ErrInvalidFilter   = errors.New("invalid filter")
	ErrInvalidInput    = errors.New("invalid input")
	// ErrStore wraps failures of the medical database itself.
	ErrStore = errors.New("medical store failure")
)

// Repository stores the medical documents of patients. Every method takes
// the hashed patient key.
type Repository interface {
	RecordExists(ctx context.Context, key string) (bool, error)
	CreateRecord(ctx context.Context, key string) error
	// DeleteRecord removes the record together with its tasks and todos.
	DeleteRecord(ctx context.Context, key string) error

	GetTask(ctx context.Context, key, id string) (*Task, error)
	ListTasks(ctx context.Context, key string, q ListQuery) ([]*Task, error)
	InsertTask(ctx context.Context, t *Task) error
	// UpdateTask replaces type and payload, keeping the creation date.
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, key, id string) error

	GetTodo(ctx context.Context, key, id string) (*Todo, error)
	ListTodos(ctx context.Context, key string, q ListQuery) ([]*Todo, error)
	InsertTodo(ctx context.Context, t *Todo) error
	UpdateTodo(ctx context.Context, t *Todo) error
	DeleteTodo(ctx context.Context, key, id string) error

	// ProjectTypes returns the configured project types, or nil when none
	// are stored.
	ProjectTypes(ctx context.Context) ([]string, error)
}
