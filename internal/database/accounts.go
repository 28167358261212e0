package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/johndosdos/haven/internal/model"
)

const userColumns = `id, username, email, name, gender, age, created_at`

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.Gender, &u.Age, &u.CreatedAt)
	return u, err
}

// upsertUser keeps the username chosen on first sign-in.
const upsertUser = `INSERT INTO users (id, username, email, name, gender, age, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
    name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END
RETURNING ` + userColumns

func (q *Queries) UpsertUser(ctx context.Context, u model.User) (model.User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return scanUser(q.db.QueryRow(ctx, upsertUser, u.ID, u.Username, u.Email, u.Name, u.Gender, u.Age, u.CreatedAt))
}

const getUser = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUser(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(q.db.QueryRow(ctx, getUser, id))
	return u, notFound(err)
}

const staffColumns = `id::text, email, name, role, hashed_password, created_at`

func scanStaff(row pgx.Row) (model.Staff, error) {
	var st model.Staff
	err := row.Scan(&st.ID, &st.Email, &st.Name, &st.Role, &st.HashedPassword, &st.CreatedAt)
	return st, err
}

const createStaff = `INSERT INTO staff (id, email, name, role, hashed_password)
VALUES ($1::uuid, $2, $3, $4, $5)
RETURNING ` + staffColumns

func (q *Queries) CreateStaff(ctx context.Context, st model.Staff) (model.Staff, error) {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	created, err := scanStaff(q.db.QueryRow(ctx, createStaff, st.ID, st.Email, st.Name, st.Role, st.HashedPassword))
	if err != nil {
		return model.Staff{}, conflict(err)
	}
	return created, nil
}

const getStaffByEmail = `SELECT ` + staffColumns + ` FROM staff WHERE lower(email) = lower($1)`

func (q *Queries) GetStaffByEmail(ctx context.Context, email string) (model.Staff, error) {
	st, err := scanStaff(q.db.QueryRow(ctx, getStaffByEmail, email))
	return st, notFound(err)
}
