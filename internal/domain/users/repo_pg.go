package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/homerev/api/internal/platform/db"
	"github.com/homerev/api/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const patientCols = `id, name, birthdate, address, condition, telephone, email, gender,
	therapists, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Birthdate, &p.Address, &p.Condition,
		&p.Telephone, &p.Email, &p.Gender, &p.Therapists, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) GetPatient(ctx context.Context, id string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get patient", err)
	}
	return p, nil
}

func (r *repoPG) CreatePatient(ctx context.Context, p *Patient) error {
	if p.Therapists == nil {
		p.Therapists = []string{}
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, birthdate, address, condition, telephone, email, gender, therapists)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Birthdate, p.Address, p.Condition, p.Telephone, p.Email, p.Gender, p.Therapists,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: patient %s", ErrAlreadyExists, p.ID)
	}
	if err != nil {
		return storeErr("create patient", err)
	}
	return nil
}

func (r *repoPG) UpdatePatient(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name = $2, birthdate = $3, address = $4, condition = $5,
			telephone = $6, email = $7, gender = $8, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.Birthdate, p.Address, p.Condition, p.Telephone, p.Email, p.Gender)
	if err != nil {
		return storeErr("update patient", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, p.ID)
	}
	return nil
}

func (r *repoPG) DeletePatient(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return storeErr("delete patient", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, id)
	}
	return nil
}

func (r *repoPG) ListByTherapist(ctx context.Context, therapistID string, cur pagination.Cursor, namePrefix string) ([]*Patient, error) {
	args := []interface{}{therapistID}
	where := []string{"$1 = ANY(therapists)"}

	if namePrefix != "" {
		args = append(args, namePrefix)
		n := len(args)
		where = append(where, fmt.Sprintf("left(name, length($%d)) = $%d", n, n))
	}

	order := "name ASC, id ASC"
	backwards := cur.Direction == pagination.Previous && !cur.IsStart()
	if !cur.IsStart() {
		var boundary string
		err := r.conn(ctx).QueryRow(ctx, `SELECT name FROM patients WHERE id = $1`, cur.DocID).Scan(&boundary)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrCursorNotFound, cur.DocID)
		}
		if err != nil {
			return nil, storeErr("read cursor", err)
		}
		args = append(args, boundary, cur.DocID)
		cmp := ">"
		if backwards {
			cmp = "<"
			order = "name DESC, id DESC"
		}
		where = append(where, fmt.Sprintf("(name, id) %s ($%d, $%d)", cmp, len(args)-1, len(args)))
	}

	args = append(args, cur.PerPage)
	query := `SELECT ` + patientCols + ` FROM patients WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY ` + order + fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("list patients of therapist", err)
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, storeErr("scan patient", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list patients of therapist", err)
	}
	if backwards {
		pagination.Reverse(items)
	}
	return items, nil
}

func (r *repoPG) CohortIDs(ctx context.Context, limit int, c Cohort) ([]string, error) {
	var (
		args  []interface{}
		where []string
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if c.Gender != "" {
		add("gender = $%d", c.Gender)
	}
	if c.BornAfter != nil {
		add("birthdate > $%d", *c.BornAfter)
	}
	if c.BornBefore != nil {
		add("birthdate < $%d", *c.BornBefore)
	}
	if c.Condition != "" {
		add("condition = $%d", c.Condition)
	}

	query := `SELECT id FROM patients`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY id LIMIT $%d`, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("select cohort", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, storeErr("select cohort", err)
	}
	return ids, nil
}

const therapistCols = `id, name, birthdate, address, email, telephone, created_at, updated_at`

func scanTherapist(row pgx.Row) (*Therapist, error) {
	var t Therapist
	err := row.Scan(&t.ID, &t.Name, &t.Birthdate, &t.Address, &t.Email, &t.Telephone, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *repoPG) GetTherapist(ctx context.Context, id string) (*Therapist, error) {
	t, err := scanTherapist(r.conn(ctx).QueryRow(ctx, `SELECT `+therapistCols+` FROM therapists WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTherapistNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get therapist", err)
	}
	return t, nil
}

func (r *repoPG) CreateTherapist(ctx context.Context, t *Therapist) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO therapists (id, name, birthdate, address, email, telephone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`,
		t.ID, t.Name, t.Birthdate, t.Address, t.Email, t.Telephone,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: therapist %s", ErrAlreadyExists, t.ID)
	}
	if err != nil {
		return storeErr("create therapist", err)
	}
	return nil
}

func (r *repoPG) UpdateTherapist(ctx context.Context, t *Therapist) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE therapists SET name = $2, birthdate = $3, address = $4, telephone = $5, updated_at = NOW()
		WHERE id = $1`,
		t.ID, t.Name, t.Birthdate, t.Address, t.Telephone)
	if err != nil {
		return storeErr("update therapist", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrTherapistNotFound, t.ID)
	}
	return nil
}

func (r *repoPG) DeleteTherapist(ctx context.Context, id string) error {
	return db.RunInTx(ctx, r.pool, func(ctx context.Context) error {
		if _, err := r.conn(ctx).Exec(ctx, `
			UPDATE patients SET therapists = array_remove(therapists, $1), updated_at = NOW()
			WHERE $1 = ANY(therapists)`, id); err != nil {
			return storeErr("unlink therapist", err)
		}
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM therapists WHERE id = $1`, id)
		if err != nil {
			return storeErr("delete therapist", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrTherapistNotFound, id)
		}
		return nil
	})
}
