package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/orehub/metalx/internal/model"
)

// UserRepo provides access to the users table holding buyer and supplier
// accounts.
type UserRepo struct {
	db *sql.DB
}

// NewUserRepo returns a new UserRepo bound to the provided database.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, password_hash, company_name, role, is_active, created_at, updated_at`

func scanUser(row auctionRowScanner) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CompanyName,
		&u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new account and populates the generated id.  A unique
// key violation on the email column is translated to ErrDuplicateEmail.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `INSERT INTO users (email, password_hash, company_name, role, is_active) VALUES (?, ?, ?, ?, TRUE)`
	result, err := r.db.ExecContext(ctx, q, u.Email, u.PasswordHash, u.CompanyName, u.Role)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return ErrDuplicateEmail
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// GetByEmail loads an account by email.  Returns ErrUserNotFound when no
// account matches.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID loads an account by primary key.  Returns ErrUserNotFound when
// the id is unknown.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EmailsByIDs returns the email address for each of the given active
// account ids.  Unknown ids are skipped.
func (r *UserRepo) EmailsByIDs(ctx context.Context, ids []uint64) (map[uint64]string, error) {
	emails := make(map[uint64]string, len(ids))
	if len(ids) == 0 {
		return emails, nil
	}
	query := `SELECT id, email FROM users WHERE is_active = TRUE AND id IN (`
	args := make([]interface{}, 0, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += ")"
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id uint64
		var email string
		if err := rows.Scan(&id, &email); err != nil {
			return nil, err
		}
		emails[id] = email
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return emails, nil
}
