package graph

import (
	"fmt"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/homerev/api/internal/domain/medical"
	"github.com/homerev/api/internal/domain/users"
	"github.com/homerev/api/internal/platform/auth"
	"github.com/homerev/api/internal/platform/authz"
	"github.com/homerev/api/pkg/pagination"
)

type resolver struct {
	users   UserService
	medical MedicalService
}

func (r *resolver) resolvers() ResolverMap {
	return ResolverMap{
		"Query": {
			"patient":             r.patient,
			"patientsOfTherapist": r.patientsOfTherapist,
			"therapist":           r.therapist,
			"therapistsOfPatient": r.therapistsOfPatient,
			"tasksOfPatients":     r.tasksOfPatients,
		},
		"Mutation": {
			"createPatient":   r.createPatient,
			"updatePatient":   r.updatePatient,
			"deletePatient":   r.deletePatient,
			"updateTherapist": r.updateTherapist,
			"deleteTherapist": r.deleteTherapist,
			"addTask":         r.addTask,
			"updateTask":      r.updateTask,
			"deleteTask":      r.deleteTask,
			"addTodo":         r.addTodo,
			"updateTodo":      r.updateTodo,
			"deleteTodo":      r.deleteTodo,
		},
		"Patient": {
			"therapists": r.patientTherapists,
			"tasks":      r.patientTasks,
			"task":       r.patientTask,
			"todos":      r.patientTodos,
			"todo":       r.patientTodo,
		},
		"Therapist": {
			"patients": r.therapistPatients,
		},
	}
}

// -- argument helpers --

func stringArg(args map[string]interface{}, name string) string {
	s, _ := args[name].(string)
	return s
}

func intArg(args map[string]interface{}, name string) int {
	n, _ := args[name].(int)
	return n
}

func timeArg(args map[string]interface{}, name string) *time.Time {
	t, ok := args[name].(time.Time)
	if !ok {
		return nil
	}
	return &t
}

func objectArg(args map[string]interface{}, name string) (map[string]interface{}, error) {
	obj, ok := args[name].(map[string]interface{})
	if !ok {
		return nil, badInput(fmt.Sprintf("%s must be an object", name))
	}
	return obj, nil
}

func cursorArg(args map[string]interface{}) (pagination.Cursor, error) {
	in, err := objectArg(args, "pagination")
	if err != nil {
		return pagination.Cursor{}, err
	}
	return pagination.FromInput(in)
}

func filterArg(args map[string]interface{}) *medical.Filter {
	in, ok := args["filter"].(map[string]interface{})
	if !ok {
		return nil
	}
	array, _ := in["array"].(bool)
	return &medical.Filter{
		Field:    stringArg(in, "field"),
		Operator: medical.Operator(stringArg(in, "operator")),
		Value:    stringArg(in, "value"),
		Type:     medical.FilterType(stringArg(in, "type")),
		Array:    array,
	}
}

func patientInputArg(args map[string]interface{}) (users.PatientInput, error) {
	in, err := objectArg(args, "patientInfo")
	if err != nil {
		return users.PatientInput{}, err
	}
	out := users.PatientInput{
		Email:     stringArg(in, "email"),
		Password:  stringArg(in, "password"),
		Name:      stringArg(in, "name"),
		Address:   stringArg(in, "address"),
		Condition: stringArg(in, "condition"),
		Telephone: stringArg(in, "telephone"),
		Gender:    stringArg(in, "gender"),
	}
	if bd := timeArg(in, "birthdate"); bd != nil {
		out.Birthdate = *bd
	}
	return out, nil
}

func therapistInputArg(args map[string]interface{}) (users.TherapistInput, error) {
	in, err := objectArg(args, "therapistInfo")
	if err != nil {
		return users.TherapistInput{}, err
	}
	out := users.TherapistInput{
		Name:      stringArg(in, "name"),
		Address:   stringArg(in, "address"),
		Telephone: stringArg(in, "telephone"),
	}
	if bd := timeArg(in, "birthdate"); bd != nil {
		out.Birthdate = *bd
	}
	return out, nil
}

func taskInputArg(args map[string]interface{}) (medical.TaskInput, error) {
	in, err := objectArg(args, "taskInfo")
	if err != nil {
		return medical.TaskInput{}, err
	}
	payload, err := objectArg(in, "task")
	if err != nil {
		return medical.TaskInput{}, err
	}
	return medical.TaskInput{Type: stringArg(in, "type"), Task: payload}, nil
}

func todoInputArg(args map[string]interface{}) (medical.TodoInput, error) {
	in, err := objectArg(args, "todoInfo")
	if err != nil {
		return medical.TodoInput{}, err
	}
	payload, err := objectArg(in, "todo")
	if err != nil {
		return medical.TodoInput{}, err
	}
	out := medical.TodoInput{Type: stringArg(in, "type"), Todo: payload}
	if d := timeArg(in, "deadline"); d != nil {
		out.Deadline = *d
	}
	return out, nil
}

// -- Query --

func (r *resolver) patient(p graphql.ResolveParams) (interface{}, error) {
	return r.users.GetPatient(p.Context, stringArg(p.Args, "id"))
}

func (r *resolver) patientsOfTherapist(p graphql.ResolveParams) (interface{}, error) {
	cur, err := cursorArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.users.PatientsOfTherapist(p.Context, stringArg(p.Args, "id"), cur, stringArg(p.Args, "name"))
}

func (r *resolver) therapist(p graphql.ResolveParams) (interface{}, error) {
	return r.users.GetTherapist(p.Context, stringArg(p.Args, "id"))
}

func (r *resolver) therapistsOfPatient(p graphql.ResolveParams) (interface{}, error) {
	return r.users.TherapistsOfPatient(p.Context, stringArg(p.Args, "id"))
}

func (r *resolver) tasksOfPatients(p graphql.ResolveParams) (interface{}, error) {
	ids, err := r.users.CohortPatientIDs(p.Context, intArg(p.Args, "nr_patients"), users.Cohort{
		Gender:     stringArg(p.Args, "gender"),
		BornAfter:  timeArg(p.Args, "bd_gt"),
		BornBefore: timeArg(p.Args, "bd_lt"),
		Condition:  stringArg(p.Args, "condition"),
	})
	if err != nil {
		return nil, err
	}
	return r.medical.TasksOfPatients(p.Context, ids, intArg(p.Args, "nr_tasks_per_patient"), stringArg(p.Args, "type"))
}

// -- Mutation --

func (r *resolver) createPatient(p graphql.ResolveParams) (interface{}, error) {
	in, err := patientInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	caller, _ := auth.PrincipalFromContext(p.Context)
	created, err := r.users.CreatePatient(p.Context, caller.Identity, in)
	if err != nil {
		return nil, err
	}
	return created.ID, nil
}

func (r *resolver) updatePatient(p graphql.ResolveParams) (interface{}, error) {
	in, err := patientInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	updated, err := r.users.UpdatePatient(p.Context, stringArg(p.Args, "id"), in)
	if err != nil {
		return nil, err
	}
	return updated.ID, nil
}

func (r *resolver) deletePatient(p graphql.ResolveParams) (interface{}, error) {
	deleted, err := r.users.DeletePatient(p.Context, stringArg(p.Args, "id"))
	if err != nil {
		return nil, err
	}
	return deleted.ID, nil
}

func (r *resolver) updateTherapist(p graphql.ResolveParams) (interface{}, error) {
	in, err := therapistInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	updated, err := r.users.UpdateTherapist(p.Context, stringArg(p.Args, "id"), in)
	if err != nil {
		return nil, err
	}
	return updated.ID, nil
}

func (r *resolver) deleteTherapist(p graphql.ResolveParams) (interface{}, error) {
	deleted, err := r.users.DeleteTherapist(p.Context, stringArg(p.Args, "id"))
	if err != nil {
		return nil, err
	}
	return deleted.ID, nil
}

func (r *resolver) addTask(p graphql.ResolveParams) (interface{}, error) {
	in, err := taskInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.medical.AddTask(p.Context, stringArg(p.Args, "id"), in)
}

func (r *resolver) updateTask(p graphql.ResolveParams) (interface{}, error) {
	in, err := taskInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.medical.UpdateTask(p.Context, stringArg(p.Args, "id"), stringArg(p.Args, "taskId"), in)
}

func (r *resolver) deleteTask(p graphql.ResolveParams) (interface{}, error) {
	return r.medical.DeleteTask(p.Context, stringArg(p.Args, "id"), stringArg(p.Args, "taskId"))
}

func (r *resolver) addTodo(p graphql.ResolveParams) (interface{}, error) {
	in, err := todoInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.medical.AddTodo(p.Context, stringArg(p.Args, "id"), in)
}

func (r *resolver) updateTodo(p graphql.ResolveParams) (interface{}, error) {
	in, err := todoInputArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.medical.UpdateTodo(p.Context, stringArg(p.Args, "id"), stringArg(p.Args, "todoId"), in)
}

func (r *resolver) deleteTodo(p graphql.ResolveParams) (interface{}, error) {
	return r.medical.DeleteTodo(p.Context, stringArg(p.Args, "id"), stringArg(p.Args, "todoId"))
}

// -- Patient --

func sourcePatient(p graphql.ResolveParams) (*users.Patient, error) {
	patient, ok := p.Source.(*users.Patient)
	if !ok || patient == nil {
		return nil, fmt.Errorf("unexpected source %T for Patient.%s", p.Source, p.Info.FieldName)
	}
	return patient, nil
}

func (r *resolver) patientTherapists(p graphql.ResolveParams) (interface{}, error) {
	patient, err := sourcePatient(p)
	if err != nil {
		return nil, err
	}
	return r.users.TherapistsByIDs(p.Context, patient.Therapists)
}

func (r *resolver) patientTasks(p graphql.ResolveParams) (interface{}, error) {
	patient, err := sourcePatient(p)
	if err != nil {
		return nil, err
	}
	cur, err := cursorArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.medical.ListTasks(p.Context, patient.ID, cur, stringArg(p.Args, "type"), filterArg(p.Args))
}

func (r *resolver) patientTask(p graphql.ResolveParams) (interface{}, error) {
	patient, err := sourcePatient(p)
	if err != nil {
		return nil, err
	}
	return r.medical.GetTask(p.Context, patient.ID, stringArg(p.Args, "taskId"))
}

func (r *resolver) patientTodos(p graphql.ResolveParams) (interface{}, error) {
	patient, err := sourcePatient(p)
	if err != nil {
		return nil, err
	}
	cur, err := cursorArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.medical.ListTodos(p.Context, patient.ID, cur, stringArg(p.Args, "type"), filterArg(p.Args))
}

func (r *resolver) patientTodo(p graphql.ResolveParams) (interface{}, error) {
	patient, err := sourcePatient(p)
	if err != nil {
		return nil, err
	}
	return r.medical.GetTodo(p.Context, patient.ID, stringArg(p.Args, "todoId"))
}

// -- Therapist --

// therapistPatients only lists the caller's own patients: the parent
// therapist may have been reached through one of its patients.
func (r *resolver) therapistPatients(p graphql.ResolveParams) (interface{}, error) {
	t, ok := p.Source.(*users.Therapist)
	if !ok || t == nil {
		return nil, fmt.Errorf("unexpected source %T for Therapist.patients", p.Source)
	}
	caller, _ := auth.PrincipalFromContext(p.Context)
	if caller.Identity != t.ID {
		return nil, authz.Deny(authz.ReasonNotAuthorizedForTarget, "Therapist.patients")
	}
	cur, err := cursorArg(p.Args)
	if err != nil {
		return nil, err
	}
	return r.users.PatientsOfTherapist(p.Context, t.ID, cur, stringArg(p.Args, "name"))
}
