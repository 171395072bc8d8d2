package domain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/augurrank/internal/platform/errors"
)

// fakeStore is an in-memory transactional store for service tests. Writes
// stage inside Update and become visible only on commit; conflictsLeft forces
// that many commits to fail with ErrConflict first.
type fakeStore struct {
	users       map[string]User
	preds       map[string]Prediction
	stats       map[string]GameStats
	newsletters map[string]NewsletterEmail

	conflictsLeft int
	updateCalls   int

	queryPage PredictionPage
	queryErr  error
	lastQuery PredictionQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:       map[string]User{},
		preds:       map[string]Prediction{},
		stats:       map[string]GameStats{},
		newsletters: map[string]NewsletterEmail{},
	}
}

type fakeTx struct {
	store *fakeStore
	users map[string]User
	preds map[string]Prediction
}

func (s *fakeStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.updateCalls++
	tx := &fakeTx{store: s, users: map[string]User{}, preds: map[string]Prediction{}}
	if err := fn(tx); err != nil {
		return err
	}
	if s.conflictsLeft > 0 {
		s.conflictsLeft--
		return ErrConflict
	}
	for addr, user := range tx.users {
		s.users[addr] = user
	}
	for id, pred := range tx.preds {
		s.preds[id] = pred
	}
	return nil
}

func (t *fakeTx) GetUser(ctx context.Context, addr string) (User, error) {
	if user, ok := t.users[addr]; ok {
		return user, nil
	}
	if user, ok := t.store.users[addr]; ok {
		return user, nil
	}
	return User{}, ErrNotFound
}

func (t *fakeTx) PutUser(ctx context.Context, user User) error {
	t.users[user.Addr] = user
	return nil
}

func (t *fakeTx) GetPrediction(ctx context.Context, id string) (Prediction, error) {
	if pred, ok := t.preds[id]; ok {
		return pred.Clone(), nil
	}
	if pred, ok := t.store.preds[id]; ok {
		return pred.Clone(), nil
	}
	return Prediction{}, ErrNotFound
}

func (t *fakeTx) PutPrediction(ctx context.Context, pred Prediction) error {
	t.preds[pred.ID] = pred.Clone()
	return nil
}

func (s *fakeStore) GetUser(ctx context.Context, addr string) (User, error) {
	if user, ok := s.users[addr]; ok {
		return user, nil
	}
	return User{}, ErrNotFound
}

func (s *fakeStore) GetPrediction(ctx context.Context, id string) (Prediction, error) {
	if pred, ok := s.preds[id]; ok {
		return pred.Clone(), nil
	}
	return Prediction{}, ErrNotFound
}

func (s *fakeStore) GetPredictions(ctx context.Context, owner string, ids []string) ([]Prediction, error) {
	var out []Prediction
	for _, id := range ids {
		if pred, ok := s.preds[id]; ok && pred.Owner == owner {
			out = append(out, pred.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) GetNewestPrediction(ctx context.Context, owner string, game Game) (Prediction, error) {
	var newest *Prediction
	for _, pred := range s.preds {
		if pred.Owner != owner || pred.Game != game {
			continue
		}
		if newest == nil || pred.CreateDate > newest.CreateDate {
			clone := pred.Clone()
			newest = &clone
		}
	}
	if newest == nil {
		return Prediction{}, ErrNotFound
	}
	return *newest, nil
}

func (s *fakeStore) QueryPredictions(ctx context.Context, query PredictionQuery) (PredictionPage, error) {
	s.lastQuery = query
	return s.queryPage, s.queryErr
}

func (s *fakeStore) PutNewsletterEmail(ctx context.Context, record NewsletterEmail) error {
	if _, ok := s.newsletters[record.Email]; ok {
		return nil
	}
	s.newsletters[record.Email] = record
	return nil
}

func (s *fakeStore) GetGameStats(ctx context.Context, owner string, game Game) (GameStats, error) {
	if stats, ok := s.stats[owner+"/"+string(game)]; ok {
		return stats, nil
	}
	return GameStats{}, ErrNotFound
}

func (s *fakeStore) PutGameStats(ctx context.Context, stats GameStats) error {
	s.stats[stats.Owner+"/"+string(stats.Game)] = stats
	return nil
}

type fakeDispatcher struct {
	payloads [][]byte
	err      error
}

func (d *fakeDispatcher) Enqueue(ctx context.Context, payload []byte) error {
	if d.err != nil {
		return d.err
	}
	d.payloads = append(d.payloads, payload)
	return nil
}

type fakeSink struct {
	events []string
}

func (s *fakeSink) Emit(ctx context.Context, kind, key, detail string) {
	s.events = append(s.events, kind+" "+key+" "+detail)
}

func testClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func instantService(store Store, dispatcher Dispatcher, events EventSink, at time.Time) *Service {
	svc := NewService(store, dispatcher, events, testClock(at))
	svc.retryDelay = time.Millisecond
	return svc
}

func TestUpsertFirstWriteCreatesRecordAndUser(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := instantService(store, nil, nil, now)

	view := &Prediction{
		ID:         "pred-1",
		Game:       GameBTC,
		Contract:   "augur-v1",
		Value:      "up",
		CreateDate: ToMillis(now) - 500,
	}
	result, err := svc.Upsert(context.Background(), "AR1Alice", view)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if result.OldStatus != StatusNone {
		t.Errorf("OldStatus = %s, want none", result.OldStatus)
	}
	if result.NewStatus != StatusInit {
		t.Errorf("NewStatus = %s, want %s", result.NewStatus, StatusInit)
	}
	if result.Prediction.UpdateDate != result.Prediction.CreateDate {
		t.Errorf("first write UpdateDate = %d, want createDate %d",
			result.Prediction.UpdateDate, result.Prediction.CreateDate)
	}
	if result.Prediction.Owner != "ar1alice" {
		t.Errorf("Owner = %s, want normalized ar1alice", result.Prediction.Owner)
	}

	user, ok := store.users["ar1alice"]
	if !ok {
		t.Fatal("user was not created")
	}
	if !user.DidAgreeTerms {
		t.Error("created user DidAgreeTerms = false, want true")
	}
	if _, ok := store.preds["pred-1"]; !ok {
		t.Error("prediction was not stored")
	}
}

func TestUpsertFirstWriteRequiresFoundationalFields(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := instantService(store, nil, nil, now)

	view := &Prediction{ID: "pred-1", SubmissionTxID: str("0xabc")}
	_, err := svc.Upsert(context.Background(), "ar1alice", view)
	if apperrors.CodeOf(err) != apperrors.CodePredictionInvalid {
		t.Fatalf("Upsert() error = %v, want prediction invalid", err)
	}
	if len(store.preds) != 0 || len(store.users) != 0 {
		t.Error("rejected first write must not persist anything")
	}
}

func TestUpsertLifecycleDispatchesOnceOnConfirmation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	dispatcher := &fakeDispatcher{}
	svc := instantService(store, dispatcher, nil, now)
	ctx := context.Background()

	first := &Prediction{
		ID:         "pred-1",
		Game:       GameBTC,
		Contract:   "augur-v1",
		Value:      "up",
		CreateDate: ToMillis(now),
	}
	if _, err := svc.Upsert(ctx, "ar1alice", first); err != nil {
		t.Fatalf("Upsert() first error = %v", err)
	}

	second := &Prediction{
		ID:                "pred-1",
		SubmissionTxID:    str("0xabc"),
		SubmissionOutcome: outcome(OutcomePending),
	}
	result, err := svc.Upsert(ctx, "ar1alice", second)
	if err != nil {
		t.Fatalf("Upsert() second error = %v", err)
	}
	if result.NewStatus != StatusInMempool {
		t.Errorf("second NewStatus = %s, want %s", result.NewStatus, StatusInMempool)
	}
	if len(dispatcher.payloads) != 0 {
		t.Fatalf("dispatched before confirmation: %d payloads", len(dispatcher.payloads))
	}

	third := &Prediction{
		ID:                  "pred-1",
		SubmissionTxID:      str("0xabc"),
		SubmissionOutcome:   outcome(OutcomeSuccess),
		ConfirmationOutcome: outcome(OutcomeSuccess),
		AnchorHeight:        num(120),
		TargetBurnHeight:    num(840100),
	}
	result, err = svc.Upsert(ctx, "ar1alice", third)
	if err != nil {
		t.Fatalf("Upsert() third error = %v", err)
	}
	if result.OldStatus != StatusInMempool || result.NewStatus != StatusConfirmedOK {
		t.Errorf("transition = %s -> %s, want %s -> %s",
			result.OldStatus, result.NewStatus, StatusInMempool, StatusConfirmedOK)
	}
	if len(dispatcher.payloads) != 1 {
		t.Fatalf("dispatched %d payloads, want 1", len(dispatcher.payloads))
	}

	var event TransitionEvent
	if err := json.Unmarshal(dispatcher.payloads[0], &event); err != nil {
		t.Fatalf("unmarshal transition event: %v", err)
	}
	if event.OldStatus != StatusInMempool || event.NewStatus != StatusConfirmedOK {
		t.Errorf("event transition = %s -> %s", event.OldStatus, event.NewStatus)
	}
	if event.NewPrediction.ID != "pred-1" {
		t.Errorf("event prediction = %s, want pred-1", event.NewPrediction.ID)
	}

	// A stale redelivery of the confirmation must not dispatch again.
	if _, err := svc.Upsert(ctx, "ar1alice", third); err != nil {
		t.Fatalf("Upsert() redelivery error = %v", err)
	}
	if len(dispatcher.payloads) != 1 {
		t.Errorf("redelivery dispatched again: %d payloads", len(dispatcher.payloads))
	}
}

func TestUpsertStalePendingDoesNotDemote(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := instantService(store, nil, nil, now)
	ctx := context.Background()

	store.preds["pred-1"] = Prediction{
		ID:                  "pred-1",
		Owner:               "ar1alice",
		Game:                GameBTC,
		Contract:            "augur-v1",
		Value:               "up",
		CreateDate:          1000,
		UpdateDate:          2000,
		SubmissionTxID:      str("0xabc"),
		SubmissionOutcome:   outcome(OutcomeSuccess),
		ConfirmationOutcome: outcome(OutcomeSuccess),
	}
	store.users["ar1alice"] = User{Addr: "ar1alice", CreateDate: 1000, UpdateDate: 1000}

	stale := &Prediction{
		ID:                  "pred-1",
		SubmissionTxID:      str("0xabc"),
		SubmissionOutcome:   outcome(OutcomePending),
		ConfirmationOutcome: outcome(OutcomePending),
	}
	result, err := svc.Upsert(ctx, "ar1alice", stale)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if result.NewStatus != StatusConfirmedOK {
		t.Errorf("NewStatus = %s, want %s", result.NewStatus, StatusConfirmedOK)
	}
	if result.Prediction.SubmissionOutcome == nil || !result.Prediction.SubmissionOutcome.Success() {
		t.Errorf("SubmissionOutcome demoted to %v", result.Prediction.SubmissionOutcome)
	}
}

func TestUpsertRetriesOnConflict(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.conflictsLeft = 2
	svc := instantService(store, nil, nil, now)

	view := &Prediction{
		ID:         "pred-1",
		Game:       GameBTC,
		Contract:   "augur-v1",
		Value:      "up",
		CreateDate: ToMillis(now),
	}
	if _, err := svc.Upsert(context.Background(), "ar1alice", view); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if store.updateCalls != 3 {
		t.Errorf("updateCalls = %d, want 3", store.updateCalls)
	}
	if _, ok := store.preds["pred-1"]; !ok {
		t.Error("prediction was not stored after retries")
	}
}

func TestUpsertConflictRetriesExhausted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.conflictsLeft = 100
	svc := instantService(store, nil, nil, now)

	view := &Prediction{
		ID:         "pred-1",
		Game:       GameBTC,
		Contract:   "augur-v1",
		Value:      "up",
		CreateDate: ToMillis(now),
	}
	_, err := svc.Upsert(context.Background(), "ar1alice", view)
	if apperrors.CodeOf(err) != apperrors.CodeStorageConflict {
		t.Fatalf("Upsert() error = %v, want storage conflict", err)
	}
}

func TestUpsertRejectsIdentityAndOwnershipMismatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := instantService(store, nil, nil, now)
	ctx := context.Background()

	store.preds["pred-1"] = Prediction{
		ID: "pred-1", Owner: "ar1bob", Game: GameBTC, Contract: "augur-v1",
		Value: "up", CreateDate: 1000, UpdateDate: 1000,
	}
	view := &Prediction{ID: "pred-1", SubmissionTxID: str("0xabc")}
	_, err := svc.Upsert(ctx, "ar1alice", view)
	if apperrors.CodeOf(err) != apperrors.CodePredictionOwnerMismatch {
		t.Fatalf("Upsert() error = %v, want owner mismatch", err)
	}
	if stored := store.preds["pred-1"]; stored.SubmissionTxID != nil {
		t.Error("rejected upsert must not write")
	}

	claimed := &Prediction{ID: "pred-2", Owner: "ar1bob", Game: GameBTC, Contract: "c", Value: "up", CreateDate: ToMillis(now)}
	_, err = svc.Upsert(ctx, "ar1alice", claimed)
	if apperrors.CodeOf(err) != apperrors.CodePredictionInvalid {
		t.Fatalf("Upsert() error = %v, want prediction invalid", err)
	}
}

func TestUpsertDispatchFailureDoesNotFail(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	dispatcher := &fakeDispatcher{err: errors.New("queue unavailable")}
	sink := &fakeSink{}
	svc := instantService(store, dispatcher, sink, now)

	view := &Prediction{
		ID:                  "pred-1",
		Game:                GameBTC,
		Contract:            "augur-v1",
		Value:               "up",
		CreateDate:          ToMillis(now),
		SubmissionTxID:      str("0xabc"),
		SubmissionOutcome:   outcome(OutcomeSuccess),
		ConfirmationOutcome: outcome(OutcomeSuccess),
	}
	result, err := svc.Upsert(context.Background(), "ar1alice", view)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if result.NewStatus != StatusConfirmedOK {
		t.Errorf("NewStatus = %s, want %s", result.NewStatus, StatusConfirmedOK)
	}
	if _, ok := store.preds["pred-1"]; !ok {
		t.Error("commit must survive dispatch failure")
	}

	found := false
	for _, event := range sink.events {
		if len(event) >= len(EventDispatchFailure) && event[:len(EventDispatchFailure)] == EventDispatchFailure {
			found = true
		}
	}
	if !found {
		t.Errorf("dispatch failure not reported, events = %v", sink.events)
	}
}

func TestUpsertEmitsDiscrepancies(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	sink := &fakeSink{}
	svc := instantService(store, nil, sink, now)

	store.preds["pred-1"] = Prediction{
		ID: "pred-1", Owner: "ar1alice", Game: GameBTC, Contract: "augur-v1",
		Value: "up", CreateDate: 1000, UpdateDate: 1000,
	}
	store.users["ar1alice"] = User{Addr: "ar1alice", CreateDate: 1000, UpdateDate: 1000}

	view := &Prediction{ID: "pred-1", Value: "down"}
	result, err := svc.Upsert(context.Background(), "ar1alice", view)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if result.Prediction.Value != "up" {
		t.Errorf("Value = %s, want stored up", result.Prediction.Value)
	}
	if len(result.Discrepancies) == 0 {
		t.Fatal("expected discrepancies")
	}
	if len(sink.events) == 0 {
		t.Error("discrepancies were not emitted")
	}
}

func TestUpsertValidation(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := instantService(newFakeStore(), nil, nil, now)
	ctx := context.Background()

	tests := []struct {
		name string
		addr string
		view *Prediction
		want apperrors.Code
	}{
		{name: "missing addr", addr: "", view: &Prediction{ID: "p"}, want: apperrors.CodeRequestInvalid},
		{name: "nil view", addr: "ar1alice", view: nil, want: apperrors.CodePredictionInvalid},
		{name: "missing id", addr: "ar1alice", view: &Prediction{}, want: apperrors.CodePredictionInvalid},
		{name: "bad game", addr: "ar1alice", view: &Prediction{ID: "p", Game: "DOGE"}, want: apperrors.CodePredictionInvalidGame},
		{name: "negative timestamp", addr: "ar1alice", view: &Prediction{ID: "p", CreateDate: -1}, want: apperrors.CodePredictionInvalid},
		{name: "empty outcome", addr: "ar1alice", view: &Prediction{ID: "p", SubmissionOutcome: outcome("")}, want: apperrors.CodePredictionInvalid},
		{name: "bad verdict", addr: "ar1alice", view: &Prediction{ID: "p", Correct: verdict("MAYBE")}, want: apperrors.CodePredictionInvalid},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := svc.Upsert(ctx, tc.addr, tc.view)
			if apperrors.CodeOf(err) != tc.want {
				t.Errorf("Upsert() error = %v, want code %s", err, tc.want)
			}
		})
	}
}
