package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	// DefaultTimeout bounds every statement so a hung database cannot stall a request.
	DefaultTimeout = 5 * time.Second

	uniqueViolation           = "23505"
	invalidTextRepresentation = "22P02"

	usernameConstraint = "users_username_key"
	emailConstraint    = "users_email_key"

	userColumns = `id, username, email, full_name, password_hash, salt, role, status, created_at, updated_at, last_login`
)

// Open connects to Postgres through the pgx database/sql driver and pings it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type userRow struct {
	ID           string         `db:"id"`
	Username     string         `db:"username"`
	Email        sql.NullString `db:"email"`
	FullName     string         `db:"full_name"`
	PasswordHash string         `db:"password_hash"`
	Salt         string         `db:"salt"`
	Role         string         `db:"role"`
	Status       string         `db:"status"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    sql.NullTime   `db:"last_login"`
}

func (r *userRow) toUser() *User {
	u := &User{
		ID:           r.ID,
		Username:     r.Username,
		Email:        r.Email.String,
		FullName:     r.FullName,
		PasswordHash: r.PasswordHash,
		Salt:         r.Salt,
		Role:         r.Role,
		Status:       Status(r.Status),
		Created:      r.CreatedAt,
		Updated:      r.UpdatedAt,
	}
	if r.LastLogin.Valid {
		t := r.LastLogin.Time
		u.LastLogin = &t
	}
	return u
}

func nullableEmail(email string) sql.NullString {
	return sql.NullString{String: email, Valid: email != ""}
}

// PostgresRepository stores users in the users table. Each mutation is a
// single-row statement.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps db. Run [Migrate] before use.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) Insert(ctx context.Context, u *User) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Username, nullableEmail(u.Email), u.FullName, u.PasswordHash, u.Salt,
		u.Role, string(u.Status), u.Created, u.Updated, u.LastLogin,
	)
	return mapError(err)
}

func (p *PostgresRepository) FindByID(ctx context.Context, id string) (*User, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return p.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (p *PostgresRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return p.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (p *PostgresRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrNotFound
	}
	return p.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (p *PostgresRepository) Update(ctx context.Context, u *User) error {
	if !validID(u.ID) {
		return ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET username = $2, email = $3, full_name = $4, password_hash = $5, salt = $6,
			role = $7, status = $8, updated_at = $9 WHERE id = $1`,
		u.ID, u.Username, nullableEmail(u.Email), u.FullName, u.PasswordHash, u.Salt,
		u.Role, string(u.Status), u.Updated,
	)
	if err != nil {
		return mapLookupError(err)
	}
	return expectRow(res)
}

func (p *PostgresRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapLookupError(err)
	}
	return expectRow(res)
}

func (p *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var rows []*userRow
	if err := sqlscan.Select(ctx, p.db, &rows, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, mapError(err)
	}
	out := make([]*User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUser())
	}
	return out, nil
}

func (p *PostgresRepository) SetLastLogin(ctx context.Context, id string, at time.Time) error {
	if !validID(id) {
		return ErrNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	res, err := p.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, at)
	if err != nil {
		return mapLookupError(err)
	}
	return expectRow(res)
}

// Ping checks connectivity.
func (p *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (p *PostgresRepository) findOne(ctx context.Context, query string, arg any) (*User, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	var row userRow
	if err := sqlscan.Get(ctx, p.db, &row, query, arg); err != nil {
		if sqlscan.NotFound(err) {
			return nil, ErrNotFound
		}
		return nil, mapLookupError(err)
	}
	return row.toUser(), nil
}

// validID reports whether id can name a row of the uuid-keyed users table.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// mapLookupError is mapError for statements keyed by id. An id the server
// cannot cast to uuid names no row.
func mapLookupError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation {
		return ErrNotFound
	}
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case emailConstraint:
			return ErrDuplicateEmail
		case usernameConstraint:
			return ErrDuplicateUsername
		default:
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
}
