package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/amistad/backend/internal/db"
	"github.com/amistad/backend/internal/models"
)

const userColumns = `id, user_uuid, nombre, apellido, username, fecha_nacimiento, avatar_path, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users and
// their local credentials.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// CreateWithCredential persists a new user and its credential in a single
// transaction. Either both rows exist afterwards or neither does.
func (r *PostgresUserRepository) CreateWithCredential(ctx context.Context, user models.User, cred models.Credential) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.User{}, fmt.Errorf("begin registration transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
        INSERT INTO users (user_uuid, nombre, apellido, username, fecha_nacimiento, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `, user.UUID, user.FirstName, user.LastName, user.Username, user.BirthDate, user.CreatedAt, user.UpdatedAt)
	if err := row.Scan(&user.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO auth_local (user_id, email, password_hash, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
    `, user.ID, cred.Email, cred.PasswordHash, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return models.User{}, ErrConflict
		}
		return models.User{}, fmt.Errorf("insert credential: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.User{}, fmt.Errorf("commit registration transaction: %w", err)
	}

	return user, nil
}

// FindByUUID fetches a user by their public identifier.
func (r *PostgresUserRepository) FindByUUID(ctx context.Context, userUUID string) (models.User, error) {
	return r.findUser(ctx, `WHERE user_uuid = $1`, userUUID)
}

// FindByID fetches a user by their internal key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id int64) (models.User, error) {
	return r.findUser(ctx, `WHERE id = $1`, id)
}

// FindByUsername fetches a user by their (lowercased) username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findUser(ctx, `WHERE username = $1`, username)
}

func (r *PostgresUserRepository) findUser(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users `+where, arg)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}

	return user, nil
}

// FindCredentialByEmail fetches a local credential by its email address.
func (r *PostgresUserRepository) FindCredentialByEmail(ctx context.Context, email string) (models.Credential, error) {
	return r.findCredential(ctx, `WHERE email = $1`, email)
}

// FindCredentialByUserID fetches the local credential owned by a user.
func (r *PostgresUserRepository) FindCredentialByUserID(ctx context.Context, userID int64) (models.Credential, error) {
	return r.findCredential(ctx, `WHERE user_id = $1`, userID)
}

func (r *PostgresUserRepository) findCredential(ctx context.Context, where string, arg any) (models.Credential, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Credential{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, user_id, email, password_hash, created_at, updated_at
        FROM auth_local `+where, arg)

	var cred models.Credential
	if err := row.Scan(&cred.ID, &cred.UserID, &cred.Email, &cred.PasswordHash, &cred.CreatedAt, &cred.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Credential{}, ErrNotFound
		}
		return models.Credential{}, fmt.Errorf("select credential: %w", err)
	}

	return cred, nil
}

// UpdateProfile modifies the mutable profile fields of an existing user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	avatar := sql.NullString{}
	if user.AvatarPath != "" {
		avatar = sql.NullString{Valid: true, String: user.AvatarPath}
	}

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET nombre = $2, apellido = $3, username = $4, fecha_nacimiento = $5, avatar_path = $6, updated_at = $7
        WHERE id = $1
    `, user.ID, user.FirstName, user.LastName, user.Username, user.BirthDate, avatar, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateCredential modifies the email and password hash of a user's credential.
func (r *PostgresUserRepository) UpdateCredential(ctx context.Context, cred models.Credential) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE auth_local
        SET email = $2, password_hash = $3, updated_at = $4
        WHERE user_id = $1
    `, cred.UserID, cred.Email, cred.PasswordHash, time.Now().UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("update credential: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Search returns users whose name, username, or email matches the term,
// newest accounts first. The term is matched case-insensitively as a
// substring.
func (r *PostgresUserRepository) Search(ctx context.Context, term string, limit, offset int) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	pattern := "%" + term + "%"

	rows, err := conn.Query(ctx, `
        SELECT u.id, u.user_uuid, u.nombre, u.apellido, u.username, u.fecha_nacimiento, u.avatar_path, u.created_at, u.updated_at
        FROM users u
        LEFT JOIN auth_local a ON a.user_id = u.id
        WHERE u.nombre ILIKE $1 OR u.apellido ILIKE $1 OR u.username ILIKE $1 OR a.email ILIKE $1
        ORDER BY u.created_at DESC
        LIMIT $2 OFFSET $3
    `, pattern, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query user search: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user search: %w", err)
	}

	return users, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user   models.User
		avatar sql.NullString
	)
	if err := row.Scan(&user.ID, &user.UUID, &user.FirstName, &user.LastName, &user.Username, &user.BirthDate, &avatar, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return models.User{}, err
	}
	if avatar.Valid {
		user.AvatarPath = avatar.String
	}
	return user, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
