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
	"github.com/amistad/backend/internal/friendship"
	"github.com/amistad/backend/internal/models"
)

// PostgresFriendshipStore provides PostgreSQL-backed persistence for
// friendship rows, serialized per pair through row locks and the pair
// uniqueness constraint.
type PostgresFriendshipStore struct {
	pool db.Pool
}

// NewPostgresFriendshipStore constructs a friendship store backed by PostgreSQL.
func NewPostgresFriendshipStore(pool db.Pool) *PostgresFriendshipStore {
	return &PostgresFriendshipStore{pool: pool}
}

// InTx runs fn inside a single transaction. The transaction commits when fn
// returns nil and rolls back on any error, so no partial friendship write is
// ever visible.
func (s *PostgresFriendshipStore) InTx(ctx context.Context, fn func(tx friendship.Tx) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin friendship transaction: %w", err)
	}

	if err := fn(&friendshipTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("commit friendship transaction: %w", err)
	}

	return nil
}

// ListForUser returns friendships where the user is either member, joined
// with the other member's profile, most recently updated first. An empty
// status applies no filter.
func (s *PostgresFriendshipStore) ListForUser(ctx context.Context, userID int64, status friendship.Status) ([]models.FriendshipWithUser, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	query := `
        SELECT u.id, u.user_uuid, u.nombre, u.apellido, u.username, u.fecha_nacimiento, u.avatar_path, u.created_at, u.updated_at,
               f.status, f.requested_by_id, f.updated_at
        FROM friendships f
        JOIN users u ON u.id = CASE WHEN f.user_low_id = $1 THEN f.user_high_id ELSE f.user_low_id END
        WHERE (f.user_low_id = $1 OR f.user_high_id = $1)`
	args := []any{userID}

	if status != "" {
		query += ` AND f.status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY f.updated_at DESC`

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query friendships: %w", err)
	}
	defer rows.Close()

	var items []models.FriendshipWithUser
	for rows.Next() {
		var (
			item        models.FriendshipWithUser
			avatar      sql.NullString
			requestedBy sql.NullInt64
		)
		if err := rows.Scan(
			&item.Other.ID, &item.Other.UUID, &item.Other.FirstName, &item.Other.LastName,
			&item.Other.Username, &item.Other.BirthDate, &avatar, &item.Other.CreatedAt, &item.Other.UpdatedAt,
			&item.Status, &requestedBy, &item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		if avatar.Valid {
			item.Other.AvatarPath = avatar.String
		}
		if requestedBy.Valid {
			id := requestedBy.Int64
			item.RequestedBy = &id
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friendships: %w", err)
	}

	return items, nil
}

// friendshipTx implements friendship.Tx on top of a pgx transaction.
type friendshipTx struct {
	tx pgx.Tx
}

// FindForUpdate loads and locks the row for the canonical pair.
func (t *friendshipTx) FindForUpdate(ctx context.Context, low, high int64) (models.Friendship, bool, error) {
	row := t.tx.QueryRow(ctx, `
        SELECT id, user_low_id, user_high_id, status, requested_by_id, created_at, updated_at
        FROM friendships
        WHERE user_low_id = $1 AND user_high_id = $2
        FOR UPDATE
    `, low, high)

	var (
		fs          models.Friendship
		requestedBy sql.NullInt64
	)
	if err := row.Scan(&fs.ID, &fs.UserLowID, &fs.UserHighID, &fs.Status, &requestedBy, &fs.CreatedAt, &fs.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Friendship{}, false, nil
		}
		return models.Friendship{}, false, fmt.Errorf("select friendship: %w", err)
	}
	if requestedBy.Valid {
		id := requestedBy.Int64
		fs.RequestedBy = &id
	}

	return fs, true, nil
}

// Insert creates the row for a new pair. A uniqueness violation on the pair
// maps to friendship.ErrDuplicatePair so the engine can retry as a
// transition.
func (t *friendshipTx) Insert(ctx context.Context, fs models.Friendship) error {
	requestedBy := sql.NullInt64{}
	if fs.RequestedBy != nil {
		requestedBy = sql.NullInt64{Valid: true, Int64: *fs.RequestedBy}
	}

	now := time.Now().UTC()
	_, err := t.tx.Exec(ctx, `
        INSERT INTO friendships (user_low_id, user_high_id, status, requested_by_id, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, fs.UserLowID, fs.UserHighID, fs.Status, requestedBy, now, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return friendship.ErrDuplicatePair
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert friendship: %w", err)
	}

	return nil
}

// SetStatus transitions the row's status and requester in place.
func (t *friendshipTx) SetStatus(ctx context.Context, id int64, status friendship.Status, requestedBy *int64) error {
	requester := sql.NullInt64{}
	if requestedBy != nil {
		requester = sql.NullInt64{Valid: true, Int64: *requestedBy}
	}

	tag, err := t.tx.Exec(ctx, `
        UPDATE friendships
        SET status = $2, requested_by_id = $3, updated_at = $4
        WHERE id = $1
    `, id, string(status), requester, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update friendship: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

var _ friendship.Store = (*PostgresFriendshipStore)(nil)
var _ friendship.Tx = (*friendshipTx)(nil)
