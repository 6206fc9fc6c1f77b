package friendship

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amistad/backend/internal/models"
)

type pairKey struct {
	low, high int64
}

// inMemoryStore implements Store with a map and optional fault injection for
// the concurrent-insert race.
type inMemoryStore struct {
	rows   map[pairKey]*models.Friendship
	nextID int64

	// insertConflicts makes the next n Insert calls fail as if a concurrent
	// transaction had already created the pair.
	insertConflicts int
	// conflictRow, when set, is installed as the existing row whenever an
	// injected conflict fires, mimicking the winner's committed insert.
	conflictRow *models.Friendship

	inserts int
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{rows: make(map[pairKey]*models.Friendship)}
}

func (s *inMemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return fn(&inMemoryTx{store: s})
}

func (s *inMemoryStore) ListForUser(_ context.Context, userID int64, status Status) ([]models.FriendshipWithUser, error) {
	var items []models.FriendshipWithUser
	for _, row := range s.rows {
		if row.UserLowID != userID && row.UserHighID != userID {
			continue
		}
		if status != "" && row.Status != string(status) {
			continue
		}
		other := row.UserHighID
		if other == userID {
			other = row.UserLowID
		}
		items = append(items, models.FriendshipWithUser{
			Other:       models.User{ID: other},
			Status:      row.Status,
			RequestedBy: row.RequestedBy,
			UpdatedAt:   row.UpdatedAt,
		})
	}
	return items, nil
}

type inMemoryTx struct {
	store *inMemoryStore
}

func (t *inMemoryTx) FindForUpdate(_ context.Context, low, high int64) (models.Friendship, bool, error) {
	row, ok := t.store.rows[pairKey{low, high}]
	if !ok {
		return models.Friendship{}, false, nil
	}
	return *row, true, nil
}

func (t *inMemoryTx) Insert(_ context.Context, fs models.Friendship) error {
	t.store.inserts++
	key := pairKey{fs.UserLowID, fs.UserHighID}

	if t.store.insertConflicts > 0 {
		t.store.insertConflicts--
		if t.store.conflictRow != nil {
			winner := *t.store.conflictRow
			t.store.rows[key] = &winner
			t.store.conflictRow = nil
		}
		return ErrDuplicatePair
	}

	if _, exists := t.store.rows[key]; exists {
		return ErrDuplicatePair
	}

	t.store.nextID++
	fs.ID = t.store.nextID
	now := time.Now().UTC()
	fs.CreatedAt = now
	fs.UpdatedAt = now
	t.store.rows[key] = &fs
	return nil
}

func (t *inMemoryTx) SetStatus(_ context.Context, id int64, status Status, requestedBy *int64) error {
	for _, row := range t.store.rows {
		if row.ID == id {
			row.Status = string(status)
			row.RequestedBy = requestedBy
			row.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return errors.New("row not found")
}

func (s *inMemoryStore) row(t *testing.T, low, high int64) models.Friendship {
	t.Helper()
	row, ok := s.rows[pairKey{low, high}]
	if !ok {
		t.Fatalf("expected row for pair (%d,%d)", low, high)
	}
	return *row
}

func TestRequestCanonicalPairOrder(t *testing.T) {
	ctx := context.Background()

	for name, pair := range map[string][2]int64{
		"low caller":  {2, 5},
		"high caller": {5, 2},
	} {
		store := newInMemoryStore()
		engine := NewEngine(store)

		result, err := engine.Request(ctx, pair[0], pair[1])
		if err != nil {
			t.Fatalf("%s: request: %v", name, err)
		}
		if !result.Created || result.Status != StatusPending {
			t.Fatalf("%s: expected newly created pending, got %+v", name, result)
		}

		row := store.row(t, 2, 5)
		if row.UserLowID != 2 || row.UserHighID != 5 {
			t.Fatalf("%s: expected canonical pair (2,5), got (%d,%d)", name, row.UserLowID, row.UserHighID)
		}
		if row.RequestedBy == nil || *row.RequestedBy != pair[0] {
			t.Fatalf("%s: expected requested_by %d, got %v", name, pair[0], row.RequestedBy)
		}
	}
}

func TestRequestSelf(t *testing.T) {
	engine := NewEngine(newInMemoryStore())
	if _, err := engine.Request(context.Background(), 7, 7); !errors.Is(err, ErrSelfRequest) {
		t.Fatalf("expected ErrSelfRequest, got %v", err)
	}
}

func TestRequestIsIdempotentWhilePending(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("first request: %v", err)
	}

	result, err := engine.Request(ctx, 5, 2)
	if err != nil {
		t.Fatalf("duplicate request: %v", err)
	}
	if result.Created || result.Status != StatusPending {
		t.Fatalf("expected pending no-op, got %+v", result)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(store.rows))
	}
}

func TestRequestAgainstAcceptedIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := engine.Accept(ctx, 2, 5); err != nil {
		t.Fatalf("accept: %v", err)
	}

	result, err := engine.Request(ctx, 5, 2)
	if err != nil {
		t.Fatalf("request after accept: %v", err)
	}
	if result.Created || result.Status != StatusAccepted {
		t.Fatalf("expected accepted no-op, got %+v", result)
	}
}

func TestAcceptByRequesterForbidden(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request: %v", err)
	}

	if _, err := engine.Accept(ctx, 5, 2); !errors.Is(err, ErrForbiddenActor) {
		t.Fatalf("expected ErrForbiddenActor for requester, got %v", err)
	}

	status, err := engine.Accept(ctx, 2, 5)
	if err != nil {
		t.Fatalf("accept by receiver: %v", err)
	}
	if status != StatusAccepted {
		t.Fatalf("expected accepted, got %s", status)
	}
}

func TestAcceptWithoutPendingRequest(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Accept(ctx, 2, 5); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest for missing row, got %v", err)
	}

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := engine.Accept(ctx, 2, 5); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := engine.Accept(ctx, 2, 5); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("expected ErrNoPendingRequest for accepted row, got %v", err)
	}
}

func TestRejectThenReRequestReopensSameRow(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request: %v", err)
	}

	status, err := engine.Reject(ctx, 2, 5)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if status != StatusRejected {
		t.Fatalf("expected rejected, got %s", status)
	}

	firstID := store.row(t, 2, 5).ID

	// Either side may reopen after a rejection.
	result, err := engine.Request(ctx, 2, 5)
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if result.Created || result.Status != StatusPending {
		t.Fatalf("expected reopened pending, got %+v", result)
	}

	row := store.row(t, 2, 5)
	if row.ID != firstID {
		t.Fatalf("expected the same row to be reused, got new id %d", row.ID)
	}
	if row.RequestedBy == nil || *row.RequestedBy != 2 {
		t.Fatalf("expected requested_by to switch to 2, got %v", row.RequestedBy)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(store.rows))
	}
}

func TestRemoveSemantics(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	// No row: idempotent removed without creating anything.
	status, err := engine.Remove(ctx, 5, 2)
	if err != nil {
		t.Fatalf("remove without row: %v", err)
	}
	if status != StatusRemoved {
		t.Fatalf("expected removed, got %s", status)
	}
	if len(store.rows) != 0 {
		t.Fatalf("remove must not create rows, got %d", len(store.rows))
	}

	// Pending row: remove does not cancel the request.
	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request: %v", err)
	}
	status, err = engine.Remove(ctx, 5, 2)
	if err != nil {
		t.Fatalf("remove pending: %v", err)
	}
	if status != StatusPending {
		t.Fatalf("expected pending untouched, got %s", status)
	}
	if got := store.row(t, 2, 5).Status; got != string(StatusPending) {
		t.Fatalf("expected row still pending, got %s", got)
	}

	// Accepted row: remove transitions it.
	if _, err := engine.Accept(ctx, 2, 5); err != nil {
		t.Fatalf("accept: %v", err)
	}
	status, err = engine.Remove(ctx, 2, 5)
	if err != nil {
		t.Fatalf("remove accepted: %v", err)
	}
	if status != StatusRemoved {
		t.Fatalf("expected removed, got %s", status)
	}

	// Already removed: no-op.
	status, err = engine.Remove(ctx, 5, 2)
	if err != nil {
		t.Fatalf("remove removed: %v", err)
	}
	if status != StatusRemoved {
		t.Fatalf("expected removed, got %s", status)
	}
}

func TestFullLifecycleScenario(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	const a, b = int64(5), int64(2)

	result, err := engine.Request(ctx, a, b)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !result.Created || result.Status != StatusPending {
		t.Fatalf("expected created pending, got %+v", result)
	}

	row := store.row(t, 2, 5)
	if row.RequestedBy == nil || *row.RequestedBy != a {
		t.Fatalf("expected requested_by=5, got %v", row.RequestedBy)
	}

	if _, err := engine.Accept(ctx, b, a); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := store.row(t, 2, 5).Status; got != string(StatusAccepted) {
		t.Fatalf("expected accepted, got %s", got)
	}

	if _, err := engine.Remove(ctx, a, b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := store.row(t, 2, 5).Status; got != string(StatusRemoved) {
		t.Fatalf("expected removed, got %s", got)
	}

	result, err = engine.Request(ctx, b, a)
	if err != nil {
		t.Fatalf("re-request: %v", err)
	}
	if result.Created || result.Status != StatusPending {
		t.Fatalf("expected reopened pending, got %+v", result)
	}
	row = store.row(t, 2, 5)
	if row.RequestedBy == nil || *row.RequestedBy != b {
		t.Fatalf("expected requested_by=2 after reopen, got %v", row.RequestedBy)
	}
}

func TestRequestRetriesAfterConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	// The other side wins the initial insert between our read and write.
	winner := int64(2)
	store.insertConflicts = 1
	store.conflictRow = &models.Friendship{
		ID: 99, UserLowID: 2, UserHighID: 5,
		Status: string(StatusPending), RequestedBy: &winner,
	}

	result, err := engine.Request(ctx, 5, 2)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if result.Created {
		t.Fatal("loser of the race must not report a created row")
	}
	if result.Status != StatusPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}
	if len(store.rows) != 1 {
		t.Fatalf("expected exactly one row after race, got %d", len(store.rows))
	}
	if store.inserts != 1 {
		t.Fatalf("expected a single insert attempt, got %d", store.inserts)
	}

	row := store.row(t, 2, 5)
	if row.RequestedBy == nil || *row.RequestedBy != winner {
		t.Fatalf("expected winner's requested_by to survive, got %v", row.RequestedBy)
	}
}

func TestListReportsRequesterSide(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request 5->2: %v", err)
	}
	if _, err := engine.Request(ctx, 9, 5); err != nil {
		t.Fatalf("request 9->5: %v", err)
	}

	views, err := engine.List(ctx, 5, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected two friendships, got %d", len(views))
	}

	byOther := make(map[int64]View, len(views))
	for _, view := range views {
		byOther[view.Other.ID] = view
	}

	if view := byOther[2]; !view.RequestedByMe {
		t.Fatal("expected the request toward 2 to be marked as sent by me")
	}
	if view := byOther[9]; view.RequestedByMe {
		t.Fatal("expected the request from 9 to be marked as received")
	}
}

func TestListStatusFilter(t *testing.T) {
	ctx := context.Background()
	store := newInMemoryStore()
	engine := NewEngine(store)

	if _, err := engine.Request(ctx, 5, 2); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := engine.Request(ctx, 5, 9); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := engine.Accept(ctx, 9, 5); err != nil {
		t.Fatalf("accept: %v", err)
	}

	accepted, err := engine.List(ctx, 5, StatusAccepted)
	if err != nil {
		t.Fatalf("list accepted: %v", err)
	}
	if len(accepted) != 1 || accepted[0].Other.ID != 9 {
		t.Fatalf("expected only the accepted friendship with 9, got %+v", accepted)
	}

	none, err := engine.List(ctx, 5, Status("bogus"))
	if err != nil {
		t.Fatalf("list bogus: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected empty list for unknown status, got %d", len(none))
	}
}

func TestPairOf(t *testing.T) {
	if low, high := PairOf(5, 2); low != 2 || high != 5 {
		t.Fatalf("expected (2,5), got (%d,%d)", low, high)
	}
	if low, high := PairOf(2, 5); low != 2 || high != 5 {
		t.Fatalf("expected (2,5), got (%d,%d)", low, high)
	}
}
