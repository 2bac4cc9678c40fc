package medical

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/homerev/api/pkg/pagination"
)

// -- Mock Repository --

type mockRepo struct {
	records map[string]bool
	tasks   map[string]*Task
	todos   map[string]*Todo
	types   []string
}

func newMockRepo() *mockRepo {
	return &mockRepo{records: map[string]bool{}, tasks: map[string]*Task{}, todos: map[string]*Todo{}}
}

func (m *mockRepo) RecordExists(_ context.Context, key string) (bool, error) {
	return m.records[key], nil
}

func (m *mockRepo) CreateRecord(_ context.Context, key string) error {
	m.records[key] = true
	return nil
}

func (m *mockRepo) DeleteRecord(_ context.Context, key string) error {
	delete(m.records, key)
	for id, t := range m.tasks {
		if t.Patient == key {
			delete(m.tasks, id)
		}
	}
	for id, t := range m.todos {
		if t.Patient == key {
			delete(m.todos, id)
		}
	}
	return nil
}

func (m *mockRepo) GetTask(_ context.Context, key, id string) (*Task, error) {
	t, ok := m.tasks[id]
	if !ok || t.Patient != key {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// ListTasks honours the type shorthand and first-page limits only.
func (m *mockRepo) ListTasks(_ context.Context, key string, q ListQuery) ([]*Task, error) {
	if _, err := q.Match(key); err != nil {
		return nil, err
	}
	var out []*Task
	for _, t := range m.tasks {
		if t.Patient == key && (q.Type == "" || t.Type == q.Type) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateCreated.Before(out[j].DateCreated) })
	if len(out) > q.Cursor.PerPage {
		out = out[:q.Cursor.PerPage]
	}
	return out, nil
}

func (m *mockRepo) InsertTask(_ context.Context, t *Task) error {
	m.tasks[t.ID] = t
	return nil
}

func (m *mockRepo) UpdateTask(_ context.Context, t *Task) error {
	cur, ok := m.tasks[t.ID]
	if !ok || cur.Patient != t.Patient {
		return ErrTaskNotFound
	}
	cur.Type, cur.Task = t.Type, t.Task
	return nil
}

func (m *mockRepo) DeleteTask(_ context.Context, key, id string) error {
	t, ok := m.tasks[id]
	if !ok || t.Patient != key {
		return ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockRepo) GetTodo(_ context.Context, key, id string) (*Todo, error) {
	t, ok := m.todos[id]
	if !ok || t.Patient != key {
		return nil, fmt.Errorf("%w: %s", ErrTodoNotFound, id)
	}
	return t, nil
}

func (m *mockRepo) ListTodos(_ context.Context, key string, q ListQuery) ([]*Todo, error) {
	var out []*Todo
	for _, t := range m.todos {
		if t.Patient == key && (q.Type == "" || t.Type == q.Type) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockRepo) InsertTodo(_ context.Context, t *Todo) error {
	m.todos[t.ID] = t
	return nil
}

func (m *mockRepo) UpdateTodo(_ context.Context, t *Todo) error {
	cur, ok := m.todos[t.ID]
	if !ok || cur.Patient != t.Patient {
		return ErrTodoNotFound
	}
	cur.Type, cur.Deadline, cur.Todo = t.Type, t.Deadline, t.Todo
	return nil
}

func (m *mockRepo) DeleteTodo(_ context.Context, key, id string) error {
	t, ok := m.todos[id]
	if !ok || t.Patient != key {
		return ErrTodoNotFound
	}
	delete(m.todos, id)
	return nil
}

func (m *mockRepo) ProjectTypes(context.Context) ([]string, error) {
	return m.types, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	svc := NewService(repo)
	n := 0
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.newID = func() string { n++; return fmt.Sprintf("doc-%d", n) }
	svc.now = func() time.Time { return base.Add(time.Duration(n) * time.Hour) }
	return svc, repo
}

// -- Tests --

func TestHashID(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := HashID("hello"); got != want {
		t.Errorf("HashID(hello) = %s, want %s", got, want)
	}
	if HashID("P1") == "P1" {
		t.Error("hash must not equal the account id")
	}
}

func TestRecordLifecycle(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	if err := svc.CreateRecord(ctx, "P1"); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}
	if !repo.records[HashID("P1")] {
		t.Fatal("record must be stored under the hashed key")
	}
	if _, err := svc.AddTask(ctx, "P1", TaskInput{Type: "VR", Task: map[string]interface{}{"score": 3}}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := svc.DeleteRecord(ctx, "P1"); err != nil {
		t.Fatalf("DeleteRecord: %v", err)
	}
	if len(repo.tasks) != 0 {
		t.Error("tasks must be removed with the record")
	}
	if err := svc.DeleteRecord(ctx, "P1"); err != nil {
		t.Errorf("deleting a missing record must succeed, got %v", err)
	}
}

func TestTasks_UnknownPatient(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.GetTask(ctx, "ghost", "x"); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("GetTask: expected ErrPatientNotFound, got %v", err)
	}
	if _, err := svc.ListTasks(ctx, "ghost", pagination.First(5), "", nil); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("ListTasks: expected ErrPatientNotFound, got %v", err)
	}
	if _, err := svc.AddTask(ctx, "ghost", TaskInput{Type: "VR", Task: map[string]interface{}{}}); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("AddTask: expected ErrPatientNotFound, got %v", err)
	}
}

func TestTaskCRUD(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	_ = svc.CreateRecord(ctx, "P1")

	id, err := svc.AddTask(ctx, "P1", TaskInput{Type: "VR", Task: map[string]interface{}{"score": 3}})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	task, err := svc.GetTask(ctx, "P1", id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Type != "VR" || task.DateCreated.IsZero() {
		t.Errorf("unexpected task %+v", task)
	}
	created := task.DateCreated

	if _, err := svc.UpdateTask(ctx, "P1", id, TaskInput{Type: "bimanueel", Task: map[string]interface{}{"score": 5}}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}
	if got := repo.tasks[id]; got.Type != "bimanueel" || !got.DateCreated.Equal(created) {
		t.Errorf("update must replace type and keep creation date, got %+v", got)
	}

	if _, err := svc.UpdateTask(ctx, "P1", "missing", TaskInput{Type: "VR", Task: map[string]interface{}{}}); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := svc.DeleteTask(ctx, "P1", id); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := svc.DeleteTask(ctx, "P1", id); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound on second delete, got %v", err)
	}
}

func TestTasks_ScopedToPatient(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.CreateRecord(ctx, "P1")
	_ = svc.CreateRecord(ctx, "P2")

	id, _ := svc.AddTask(ctx, "P1", TaskInput{Type: "VR", Task: map[string]interface{}{}})
	if _, err := svc.GetTask(ctx, "P2", id); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("another patient's task must not be visible, got %v", err)
	}
	if _, err := svc.DeleteTask(ctx, "P2", id); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("another patient's task must not be deletable, got %v", err)
	}
}

func TestListTasks_TypeAndFilterExclusive(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.CreateRecord(ctx, "P1")

	f := &Filter{Field: "task.score", Operator: OpGT, Value: "1", Type: TypeInt}
	if _, err := svc.ListTasks(ctx, "P1", pagination.First(5), "VR", f); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
	if _, err := svc.ListTodos(ctx, "P1", pagination.First(5), "VR", f); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestTasksOfPatients(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.CreateRecord(ctx, "P1")
	_ = svc.CreateRecord(ctx, "P2")
	for i := 0; i < 3; i++ {
		_, _ = svc.AddTask(ctx, "P1", TaskInput{Type: "VR", Task: map[string]interface{}{"i": i}})
	}
	_, _ = svc.AddTask(ctx, "P2", TaskInput{Type: "bimanueel", Task: map[string]interface{}{}})

	got, err := svc.TasksOfPatients(ctx, []string{"P1", "P2"}, 2, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || len(got[0]) != 2 || len(got[1]) != 1 {
		t.Fatalf("unexpected shape %v", got)
	}

	got, err = svc.TasksOfPatients(ctx, []string{"P1", "P2"}, 5, "VR")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got[0]) != 3 || len(got[1]) != 0 {
		t.Errorf("type filter not applied: %v", got)
	}

	if _, err := svc.TasksOfPatients(ctx, []string{"P1", "ghost"}, 1, ""); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := svc.TasksOfPatients(ctx, []string{"P1"}, 0, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	many := make([]string, pagination.MaxPerPage+1)
	for i := range many {
		many[i] = "P1"
	}
	if _, err := svc.TasksOfPatients(ctx, many, 1, ""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for too many patients, got %v", err)
	}
}

func TestTodoGetterReadsTodos(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.CreateRecord(ctx, "P1")

	taskID, _ := svc.AddTask(ctx, "P1", TaskInput{Type: "VR", Task: map[string]interface{}{}})
	deadline := time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)
	todoID, err := svc.AddTodo(ctx, "P1", TodoInput{Type: "VR", Deadline: deadline, Todo: map[string]interface{}{"goal": "x"}})
	if err != nil {
		t.Fatalf("AddTodo: %v", err)
	}

	todo, err := svc.GetTodo(ctx, "P1", todoID)
	if err != nil {
		t.Fatalf("GetTodo: %v", err)
	}
	if !todo.Deadline.Equal(deadline) || todo.Todo["goal"] != "x" {
		t.Errorf("unexpected todo %+v", todo)
	}
	if _, err := svc.GetTodo(ctx, "P1", taskID); !errors.Is(err, ErrTodoNotFound) {
		t.Errorf("a task id must not resolve as a todo, got %v", err)
	}
}

func TestTodoValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_ = svc.CreateRecord(ctx, "P1")

	tests := []struct {
		name string
		in   TodoInput
	}{
		{"no type", TodoInput{Deadline: time.Now(), Todo: map[string]interface{}{}}},
		{"no deadline", TodoInput{Type: "VR", Todo: map[string]interface{}{}}},
		{"no payload", TodoInput{Type: "VR", Deadline: time.Now()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.AddTodo(ctx, "P1", tt.in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestProjectTypes(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	got, _ := svc.ProjectTypes(ctx, nil)
	if len(got) != 2 || got[0] != "bimanueel" || got[1] != "VR" {
		t.Errorf("expected defaults, got %v", got)
	}
	got, _ = svc.ProjectTypes(ctx, []string{"mirror"})
	if len(got) != 1 || got[0] != "mirror" {
		t.Errorf("expected fallback, got %v", got)
	}
	repo.types = []string{"stored"}
	got, _ = svc.ProjectTypes(ctx, []string{"mirror"})
	if len(got) != 1 || got[0] != "stored" {
		t.Errorf("stored types must win, got %v", got)
	}
}
