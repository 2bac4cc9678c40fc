package medical

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/homerev/api/pkg/pagination"
)

const (
	recordsCollection = "patients"
	tasksCollection   = "tasks"
	todosCollection   = "todos"
	utilsCollection   = "utils"
	projectTypesDoc   = "projectTypes"
)

type repoMongo struct {
	records *mongo.Collection
	tasks   *mongo.Collection
	todos   *mongo.Collection
	utils   *mongo.Collection
}

func NewRepoMongo(db *mongo.Database) Repository {
	return &repoMongo{
		records: db.Collection(recordsCollection),
		tasks:   db.Collection(tasksCollection),
		todos:   db.Collection(todosCollection),
		utils:   db.Collection(utilsCollection),
	}
}

// EnsureIndexes creates the indexes the list queries rely on.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "patient", Value: 1}, {Key: DefaultSortField, Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "patient", Value: 1}, {Key: "type", Value: 1}}},
	}
	for _, name := range []string{tasksCollection, todosCollection} {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", name, err)
		}
	}
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func (r *repoMongo) RecordExists(ctx context.Context, key string) (bool, error) {
	n, err := r.records.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, storeErr("check record", err)
	}
	return n > 0, nil
}

func (r *repoMongo) CreateRecord(ctx context.Context, key string) error {
	_, err := r.records.InsertOne(ctx, Record{Key: key, CreatedAt: time.Now().UTC()})
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return storeErr("create record", err)
	}
	return nil
}

func (r *repoMongo) DeleteRecord(ctx context.Context, key string) error {
	if _, err := r.tasks.DeleteMany(ctx, bson.M{"patient": key}); err != nil {
		return storeErr("delete tasks", err)
	}
	if _, err := r.todos.DeleteMany(ctx, bson.M{"patient": key}); err != nil {
		return storeErr("delete todos", err)
	}
	if _, err := r.records.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return storeErr("delete record", err)
	}
	return nil
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, key, id string, notFound error) (*T, error) {
	var doc T
	err := coll.FindOne(ctx, bson.M{"_id": id, "patient": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", notFound, id)
	}
	if err != nil {
		return nil, storeErr("find "+coll.Name(), err)
	}
	return &doc, nil
}

// list runs a keyset paged query ordered by (sort field, _id). The boundary
// value is read from the cursor document, which must belong to the patient.
func list[T any](ctx context.Context, coll *mongo.Collection, key string, q ListQuery) ([]*T, error) {
	match, err := q.Match(key)
	if err != nil {
		return nil, err
	}
	sortField := q.SortField()
	cur := q.Cursor
	dir := 1
	backwards := cur.Direction == pagination.Previous && !cur.IsStart()

	if !cur.IsStart() {
		raw, err := coll.FindOne(ctx, bson.M{"_id": cur.DocID, "patient": key}).Raw()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ErrCursorNotFound, cur.DocID)
		}
		if err != nil {
			return nil, storeErr("read cursor", err)
		}
		cmp := "$gt"
		if backwards {
			cmp = "$lt"
			dir = -1
		}
		if sortField == "_id" {
			match = append(match, bson.E{Key: "_id", Value: bson.D{{Key: cmp, Value: cur.DocID}}})
		} else {
			var boundary *bson.RawValue
			if v, err := raw.LookupErr(strings.Split(sortField, ".")...); err == nil && v.Type != bsontype.Null {
				boundary = &v
			}
			match = append(match, afterBoundary(sortField, cmp, cur.DocID, boundary))
		}
	}

	sort := bson.D{{Key: sortField, Value: dir}}
	if sortField != "_id" {
		sort = append(sort, bson.E{Key: "_id", Value: dir})
	}
	opts := options.Find().SetSort(sort).SetLimit(int64(cur.PerPage))

	cursor, err := coll.Find(ctx, match, opts)
	if err != nil {
		return nil, storeErr("list "+coll.Name(), err)
	}
	items := []*T{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, storeErr("decode "+coll.Name(), err)
	}
	if backwards {
		pagination.Reverse(items)
	}
	return items, nil
}

// afterBoundary selects the documents ordered after (cmp $gt) or before
// (cmp $lt) the cursor document under the (field, _id) sort. A nil boundary
// means the cursor document has no value for field, which sorts as null
// below every other value.
func afterBoundary(field, cmp, docID string, boundary *bson.RawValue) bson.E {
	sameValue := bson.D{{Key: field, Value: nil}, {Key: "_id", Value: bson.D{{Key: cmp, Value: docID}}}}
	if boundary == nil {
		if cmp == "$lt" {
			return bson.E{Key: "$and", Value: bson.A{sameValue}}
		}
		return bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: field, Value: bson.D{{Key: "$ne", Value: nil}}}},
			sameValue,
		}}
	}
	sameValue[0].Value = *boundary
	cond := bson.A{
		bson.D{{Key: field, Value: bson.D{{Key: cmp, Value: *boundary}}}},
		sameValue,
	}
	if cmp == "$lt" {
		cond = append(cond, bson.D{{Key: field, Value: nil}})
	}
	return bson.E{Key: "$or", Value: cond}
}

func (r *repoMongo) GetTask(ctx context.Context, key, id string) (*Task, error) {
	return findOne[Task](ctx, r.tasks, key, id, ErrTaskNotFound)
}

func (r *repoMongo) ListTasks(ctx context.Context, key string, q ListQuery) ([]*Task, error) {
	return list[Task](ctx, r.tasks, key, q)
}

func (r *repoMongo) InsertTask(ctx context.Context, t *Task) error {
	if _, err := r.tasks.InsertOne(ctx, t); err != nil {
		return storeErr("insert task", err)
	}
	return nil
}

func (r *repoMongo) UpdateTask(ctx context.Context, t *Task) error {
	res, err := r.tasks.UpdateOne(ctx,
		bson.M{"_id": t.ID, "patient": t.Patient},
		bson.M{"$set": bson.M{"type": t.Type, "task": t.Task}})
	if err != nil {
		return storeErr("update task", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	return nil
}

func (r *repoMongo) DeleteTask(ctx context.Context, key, id string) error {
	res, err := r.tasks.DeleteOne(ctx, bson.M{"_id": id, "patient": key})
	if err != nil {
		return storeErr("delete task", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return nil
}

func (r *repoMongo) GetTodo(ctx context.Context, key, id string) (*Todo, error) {
	return findOne[Todo](ctx, r.todos, key, id, ErrTodoNotFound)
}

func (r *repoMongo) ListTodos(ctx context.Context, key string, q ListQuery) ([]*Todo, error) {
	return list[Todo](ctx, r.todos, key, q)
}

func (r *repoMongo) InsertTodo(ctx context.Context, t *Todo) error {
	if _, err := r.todos.InsertOne(ctx, t); err != nil {
		return storeErr("insert todo", err)
	}
	return nil
}

func (r *repoMongo) UpdateTodo(ctx context.Context, t *Todo) error {
	res, err := r.todos.UpdateOne(ctx,
		bson.M{"_id": t.ID, "patient": t.Patient},
		bson.M{"$set": bson.M{"type": t.Type, "deadline": t.Deadline, "todo": t.Todo}})
	if err != nil {
		return storeErr("update todo", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ErrTodoNotFound, t.ID)
	}
	return nil
}

func (r *repoMongo) DeleteTodo(ctx context.Context, key, id string) error {
	res, err := r.todos.DeleteOne(ctx, bson.M{"_id": id, "patient": key})
	if err != nil {
		return storeErr("delete todo", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", ErrTodoNotFound, id)
	}
	return nil
}

func (r *repoMongo) ProjectTypes(ctx context.Context) ([]string, error) {
	var doc struct {
		ProjectTypes []string `bson:"projectTypes"`
	}
	err := r.utils.FindOne(ctx, bson.M{"_id": projectTypesDoc}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("read project types", err)
	}
	return doc.ProjectTypes, nil
}
