package friendship

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amistad/backend/internal/logging"
	"github.com/amistad/backend/internal/models"
)

var (
	// ErrSelfRequest indicates a user tried to befriend themselves.
	ErrSelfRequest = errors.New("friendship: self request not allowed")
	// ErrNoPendingRequest indicates no pending row exists for the pair.
	ErrNoPendingRequest = errors.New("friendship: no pending request")
	// ErrForbiddenActor indicates the requester tried to answer their own request.
	ErrForbiddenActor = errors.New("friendship: only the receiving party may respond")
	// ErrDuplicatePair is returned by Tx.Insert when the canonical pair already
	// has a row, which happens when a concurrent request wins the first insert.
	ErrDuplicatePair = errors.New("friendship: pair already exists")
)

// errRetryRequest signals that a concurrent first insert won the race and the
// operation should re-run as a read-then-transition.
var errRetryRequest = errors.New("friendship: concurrent insert, retry")

// Tx exposes the row operations available inside a single friendship
// transaction. FindForUpdate must lock the row for the duration of the
// transaction so the read-evaluate-write sequence is serialized per pair.
type Tx interface {
	FindForUpdate(ctx context.Context, low, high int64) (models.Friendship, bool, error)
	Insert(ctx context.Context, fs models.Friendship) error
	SetStatus(ctx context.Context, id int64, status Status, requestedBy *int64) error
}

// Store provides transactional access to friendship rows. InTx runs fn inside
// one transaction, committing on nil and rolling back on any error.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ListForUser(ctx context.Context, userID int64, status Status) ([]models.FriendshipWithUser, error)
}

// View is one friendship as seen by the caller: the other member's profile,
// the relationship status, and whether the caller sent the current request.
type View struct {
	Other         models.User
	Status        Status
	RequestedByMe bool
	UpdatedAt     time.Time
}

// Result reports the outcome of a friend request: the row status afterwards
// and whether a new row was created (as opposed to reopened or left alone).
type Result struct {
	Status  Status
	Created bool
}

// Engine enforces the friendship lifecycle: canonical pair ordering, the
// status state machine, and the actor-permission rules for pending requests.
// Callers and targets are internal user keys, resolved beforehand by the API
// layer.
type Engine struct {
	store Store
}

// NewEngine constructs an Engine on top of the provided friendship store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Request sends a friend request from caller to target. A first request
// creates a pending row; a request against a rejected or removed row reopens
// it as pending with the caller as requester; a request against a pending or
// accepted row changes nothing and reports the current status.
func (e *Engine) Request(ctx context.Context, caller, target int64) (Result, error) {
	ctx, span := logging.StartSpan(ctx, "friendship.request")
	defer span.End()

	if caller == target {
		return Result{}, ErrSelfRequest
	}

	low, high := PairOf(caller, target)

	for attempt := 0; attempt < 2; attempt++ {
		var res Result
		err := e.store.InTx(ctx, func(tx Tx) error {
			current, found, err := tx.FindForUpdate(ctx, low, high)
			if err != nil {
				return err
			}

			if !found {
				requester := caller
				fs := models.Friendship{
					UserLowID:   low,
					UserHighID:  high,
					Status:      string(StatusPending),
					RequestedBy: &requester,
				}
				if err := tx.Insert(ctx, fs); err != nil {
					if errors.Is(err, ErrDuplicatePair) {
						return errRetryRequest
					}
					return err
				}
				res = Result{Status: StatusPending, Created: true}
				return nil
			}

			switch Status(current.Status) {
			case StatusRejected, StatusRemoved:
				requester := caller
				if err := tx.SetStatus(ctx, current.ID, StatusPending, &requester); err != nil {
					return err
				}
				res = Result{Status: StatusPending}
			default:
				res = Result{Status: Status(current.Status)}
			}
			return nil
		})
		if errors.Is(err, errRetryRequest) {
			// The concurrent winner left a row behind; the next pass finds it
			// and transitions instead of inserting.
			continue
		}
		if err != nil {
			return Result{}, err
		}
		return res, nil
	}

	return Result{}, fmt.Errorf("request friendship %d/%d: retries exhausted", low, high)
}

// Accept transitions a pending request to accepted. Only the party that did
// not send the request may accept it.
func (e *Engine) Accept(ctx context.Context, caller, target int64) (Status, error) {
	ctx, span := logging.StartSpan(ctx, "friendship.accept")
	defer span.End()
	return e.respond(ctx, caller, target, StatusAccepted)
}

// Reject transitions a pending request to rejected, with the same actor rule
// as Accept.
func (e *Engine) Reject(ctx context.Context, caller, target int64) (Status, error) {
	ctx, span := logging.StartSpan(ctx, "friendship.reject")
	defer span.End()
	return e.respond(ctx, caller, target, StatusRejected)
}

func (e *Engine) respond(ctx context.Context, caller, target int64, to Status) (Status, error) {
	low, high := PairOf(caller, target)

	err := e.store.InTx(ctx, func(tx Tx) error {
		current, found, err := tx.FindForUpdate(ctx, low, high)
		if err != nil {
			return err
		}
		if !found || Status(current.Status) != StatusPending {
			return ErrNoPendingRequest
		}
		if current.RequestedBy != nil && *current.RequestedBy == caller {
			return ErrForbiddenActor
		}
		return tx.SetStatus(ctx, current.ID, to, current.RequestedBy)
	})
	if err != nil {
		return "", err
	}
	return to, nil
}

// Remove ends an accepted friendship. Removing when no row exists is an
// idempotent no-op reporting removed; removing a row in any non-accepted
// state leaves it untouched and reports its current status. A pending request
// is not cancelled by Remove, it must be accepted or rejected.
func (e *Engine) Remove(ctx context.Context, caller, target int64) (Status, error) {
	ctx, span := logging.StartSpan(ctx, "friendship.remove")
	defer span.End()

	low, high := PairOf(caller, target)

	result := StatusRemoved
	err := e.store.InTx(ctx, func(tx Tx) error {
		current, found, err := tx.FindForUpdate(ctx, low, high)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}
		if Status(current.Status) == StatusAccepted {
			return tx.SetStatus(ctx, current.ID, StatusRemoved, current.RequestedBy)
		}
		result = Status(current.Status)
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

// List returns the caller's friendships, most recently updated first,
// optionally filtered to a single status. The empty status means no filter.
func (e *Engine) List(ctx context.Context, caller int64, filter Status) ([]View, error) {
	ctx, span := logging.StartSpan(ctx, "friendship.list")
	defer span.End()

	rows, err := e.store.ListForUser(ctx, caller, filter)
	if err != nil {
		return nil, fmt.Errorf("list friendships: %w", err)
	}

	views := make([]View, 0, len(rows))
	for _, row := range rows {
		views = append(views, View{
			Other:         row.Other,
			Status:        Status(row.Status),
			RequestedByMe: row.RequestedBy != nil && *row.RequestedBy == caller,
			UpdatedAt:     row.UpdatedAt,
		})
	}
	return views, nil
}
