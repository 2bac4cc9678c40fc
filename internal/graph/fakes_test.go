package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homerev/api/internal/domain/medical"
	"github.com/homerev/api/internal/domain/users"
	"github.com/homerev/api/pkg/pagination"
)

// fakeUsers is an in-memory UserService.
type fakeUsers struct {
	mu         sync.Mutex
	patients   map[string]*users.Patient
	therapists map[string]*users.Therapist
	created    []string
	failWith   error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		patients: map[string]*users.Patient{
			"P1": {ID: "P1", Name: "Anna", Gender: "V", Birthdate: time.Date(1990, 4, 2, 0, 0, 0, 0, time.UTC), Therapists: []string{"T1"}},
			"P2": {ID: "P2", Name: "Bert", Gender: "M", Therapists: []string{"T2"}},
			"P3": {ID: "P3", Name: "Bram", Gender: "M", Therapists: []string{"T1", "T2"}},
		},
		therapists: map[string]*users.Therapist{
			"T1": {ID: "T1", Name: "Dr. One"},
			"T2": {ID: "T2", Name: "Dr. Two"},
		},
	}
}

func (f *fakeUsers) IsTherapistOfPatient(_ context.Context, therapistID, patientID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return false, f.failWith
	}
	p, ok := f.patients[patientID]
	if !ok {
		return false, users.ErrPatientNotFound
	}
	return p.HasTherapist(therapistID), nil
}

func (f *fakeUsers) GetPatient(_ context.Context, id string) (*users.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", users.ErrPatientNotFound, id)
	}
	return p, nil
}

func (f *fakeUsers) GetTherapist(_ context.Context, id string) (*users.Therapist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.therapists[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", users.ErrTherapistNotFound, id)
	}
	return t, nil
}

func (f *fakeUsers) TherapistsOfPatient(ctx context.Context, patientID string) ([]*users.Therapist, error) {
	p, err := f.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return f.TherapistsByIDs(ctx, p.Therapists)
}

func (f *fakeUsers) TherapistsByIDs(ctx context.Context, ids []string) ([]*users.Therapist, error) {
	out := make([]*users.Therapist, 0, len(ids))
	for _, id := range ids {
		t, err := f.GetTherapist(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeUsers) PatientsOfTherapist(_ context.Context, therapistID string, cur pagination.Cursor, prefix string) ([]*users.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*users.Patient
	for _, p := range f.patients {
		if p.HasTherapist(therapistID) && strings.HasPrefix(p.Name, prefix) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if len(out) > cur.PerPage {
		out = out[:cur.PerPage]
	}
	return out, nil
}

func (f *fakeUsers) CohortPatientIDs(_ context.Context, limit int, c users.Cohort) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, p := range f.patients {
		if c.Gender == "" || p.Gender == c.Gender {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeUsers) CreatePatient(_ context.Context, therapistID string, in users.PatientInput) (*users.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Password == "" {
		return nil, fmt.Errorf("%w: password is required", users.ErrInvalidInput)
	}
	id := fmt.Sprintf("P%d", len(f.patients)+1)
	p := &users.Patient{ID: id, Name: in.Name, Email: in.Email, Gender: in.Gender, Birthdate: in.Birthdate, Therapists: []string{therapistID}}
	f.patients[id] = p
	f.created = append(f.created, id)
	return p, nil
}

func (f *fakeUsers) UpdatePatient(ctx context.Context, id string, in users.PatientInput) (*users.Patient, error) {
	p, err := f.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p.Name = in.Name
	return p, nil
}

func (f *fakeUsers) DeletePatient(ctx context.Context, id string) (*users.Patient, error) {
	p, err := f.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.patients, id)
	return p, nil
}

func (f *fakeUsers) UpdateTherapist(ctx context.Context, id string, in users.TherapistInput) (*users.Therapist, error) {
	t, err := f.GetTherapist(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Name = in.Name
	return t, nil
}

func (f *fakeUsers) DeleteTherapist(ctx context.Context, id string) (*users.Therapist, error) {
	t, err := f.GetTherapist(ctx, id)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.therapists, id)
	return t, nil
}

// fakeMedical is an in-memory MedicalService keyed by patient id.
type fakeMedical struct {
	mu    sync.Mutex
	tasks map[string][]*medical.Task
	todos map[string][]*medical.Todo
	seq   int
}

func newFakeMedical() *fakeMedical {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &fakeMedical{
		tasks: map[string][]*medical.Task{
			"P1": {
				{ID: "task-1", Type: "VR", DateCreated: created, Task: map[string]interface{}{"score": 7.0}},
				{ID: "task-2", Type: "bimanueel", DateCreated: created.Add(time.Hour)},
			},
			"P2": {{ID: "task-3", Type: "VR", DateCreated: created}},
		},
		todos: map[string][]*medical.Todo{
			"P1": {{ID: "todo-1", Type: "VR", DateCreated: created, Deadline: created.Add(48 * time.Hour)}},
		},
	}
}

func (m *fakeMedical) GetTask(_ context.Context, patientID, taskID string) (*medical.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks[patientID] {
		if t.ID == taskID {
			return t, nil
		}
	}
	return nil, medical.ErrTaskNotFound
}

func (m *fakeMedical) ListTasks(_ context.Context, patientID string, cur pagination.Cursor, typ string, _ *medical.Filter) ([]*medical.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*medical.Task
	for _, t := range m.tasks[patientID] {
		if typ == "" || t.Type == typ {
			out = append(out, t)
		}
	}
	if len(out) > cur.PerPage {
		out = out[:cur.PerPage]
	}
	return out, nil
}

func (m *fakeMedical) TasksOfPatients(ctx context.Context, patientIDs []string, perPatient int, typ string) ([][]*medical.Task, error) {
	out := make([][]*medical.Task, 0, len(patientIDs))
	for _, id := range patientIDs {
		tasks, err := m.ListTasks(ctx, id, pagination.First(perPatient), typ, nil)
		if err != nil {
			return nil, err
		}
		if tasks == nil {
			tasks = []*medical.Task{}
		}
		out = append(out, tasks)
	}
	return out, nil
}

func (m *fakeMedical) AddTask(_ context.Context, patientID string, in medical.TaskInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("new-task-%d", m.seq)
	m.tasks[patientID] = append(m.tasks[patientID], &medical.Task{ID: id, Type: in.Type, Task: in.Task})
	return id, nil
}

func (m *fakeMedical) UpdateTask(ctx context.Context, patientID, taskID string, in medical.TaskInput) (string, error) {
	t, err := m.GetTask(ctx, patientID, taskID)
	if err != nil {
		return "", err
	}
	t.Type, t.Task = in.Type, in.Task
	return taskID, nil
}

func (m *fakeMedical) DeleteTask(ctx context.Context, patientID, taskID string) (string, error) {
	if _, err := m.GetTask(ctx, patientID, taskID); err != nil {
		return "", err
	}
	return taskID, nil
}

func (m *fakeMedical) GetTodo(_ context.Context, patientID, todoID string) (*medical.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.todos[patientID] {
		if t.ID == todoID {
			return t, nil
		}
	}
	return nil, medical.ErrTodoNotFound
}

func (m *fakeMedical) ListTodos(_ context.Context, patientID string, _ pagination.Cursor, _ string, f *medical.Filter) ([]*medical.Todo, error) {
	if f != nil && f.Field == "" {
		return nil, errors.New("filter without field")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.todos[patientID], nil
}

func (m *fakeMedical) AddTodo(_ context.Context, patientID string, in medical.TodoInput) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("new-todo-%d", m.seq)
	m.todos[patientID] = append(m.todos[patientID], &medical.Todo{ID: id, Type: in.Type, Deadline: in.Deadline, Todo: in.Todo})
	return id, nil
}

func (m *fakeMedical) UpdateTodo(ctx context.Context, patientID, todoID string, _ medical.TodoInput) (string, error) {
	if _, err := m.GetTodo(ctx, patientID, todoID); err != nil {
		return "", err
	}
	return todoID, nil
}

func (m *fakeMedical) DeleteTodo(ctx context.Context, patientID, todoID string) (string, error) {
	if _, err := m.GetTodo(ctx, patientID, todoID); err != nil {
		return "", err
	}
	return todoID, nil
}
