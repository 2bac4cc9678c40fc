package medical

import "time"

// Task is an exercise a patient performed, stored in the tasks collection.
// Patient holds the hashed patient key, never the account id.
type Task struct {
	ID          string                 `bson:"_id" json:"id"`
	Patient     string                 `bson:"patient" json:"-"`
	Type        string                 `bson:"type" json:"type"`
	DateCreated time.Time              `bson:"dateCreated" json:"dateCreated"`
	Task        map[string]interface{} `bson:"task" json:"task"`
}

// Todo is an assignment a therapist gave a patient.
type Todo struct {
	ID          string                 `bson:"_id" json:"id"`
	Patient     string                 `bson:"patient" json:"-"`
	Type        string                 `bson:"type" json:"type"`
	DateCreated time.Time              `bson:"dateCreated" json:"dateCreated"`
	Deadline    time.Time              `bson:"deadline" json:"deadline"`
	Todo        map[string]interface{} `bson:"todo" json:"todo"`
}

type TaskInput struct {
	Type string
	Task map[string]interface{}
}

type TodoInput struct {
	Type     string
	Deadline time.Time
	Todo     map[string]interface{}
}

// Record is the per-patient anchor document. Tasks and todos of a patient
// without a record are unreachable.
type Record struct {
	Key       string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
}
