package domain

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/louisbranch/augurrank/internal/platform/errors"
)

// Event kinds reported through the observability sink.
const (
	// EventDiscrepancy records a rectified disagreement between a partial view
	// and stored facts.
	EventDiscrepancy = "discrepancy"
	// EventDispatchFailure records a side-effect enqueue that failed after a
	// successful commit.
	EventDispatchFailure = "dispatch_failure"
)

const (
	defaultUpsertMaxRetries  = 4
	defaultRetryInitialDelay = 50 * time.Millisecond

	// PageSize caps prediction listings and id lookups per request.
	PageSize = 10

	statsQueryLimit = 10000
)

// Dispatcher enqueues one side-effect message for at-least-once delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, payload []byte) error
}

// EventSink receives operational observability events. Implementations must
// never fail the caller.
type EventSink interface {
	Emit(ctx context.Context, kind, key, detail string)
}

// TransitionEvent is the side-effect payload dispatched when a prediction
// first reaches CONFIRMED_OK. Downstream consumers must be idempotent on
// (OldStatus, NewStatus, prediction ID); delivery is at-least-once.
type TransitionEvent struct {
	OldStatus     PredStatus  `json:"oldStatus"`
	NewStatus     PredStatus  `json:"newStatus"`
	OldUser       *User       `json:"oldUser,omitempty"`
	NewUser       User        `json:"newUser"`
	OldPrediction *Prediction `json:"oldPrediction,omitempty"`
	NewPrediction Prediction  `json:"newPrediction"`
}

// UpsertResult reports one accepted upsert.
type UpsertResult struct {
	Prediction    Prediction
	OldStatus     PredStatus
	NewStatus     PredStatus
	Discrepancies []Discrepancy
}

// Service coordinates transactional prediction reconciliation and the
// surrounding read paths.
type Service struct {
	store      Store
	dispatcher Dispatcher
	events     EventSink
	clock      func() time.Time

	maxRetries uint64
	retryDelay time.Duration
}

// NewService constructs the predictions service. dispatcher and events may be
// nil; clock defaults to time.Now.
func NewService(store Store, dispatcher Dispatcher, events EventSink, clock func() time.Time) *Service {
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		store:      store,
		dispatcher: dispatcher,
		events:     events,
		clock:      clock,
		maxRetries: defaultUpsertMaxRetries,
		retryDelay: defaultRetryInitialDelay,
	}
}

// upsertState carries the outcome of one committed upsert transaction.
type upsertState struct {
	result        UpsertResult
	oldUser       *User
	newUser       User
	oldPrediction *Prediction
	dispatch      bool
}

// Upsert reconciles one partial view into the stored record inside one
// transaction, retrying on optimistic conflicts with fresh reads. After a
// successful commit it dispatches the side-effect message exactly on the
// transition into CONFIRMED_OK; dispatch failure is reported through the
// observability sink and never fails the upsert.
func (s *Service) Upsert(ctx context.Context, addr string, view *Prediction) (UpsertResult, error) {
	if s == nil || s.store == nil {
		return UpsertResult{}, apperrors.New(apperrors.CodeStorageUnavailable, "prediction store is not configured")
	}
	addr = NormalizeAddr(addr)
	if err := validateView(addr, view); err != nil {
		return UpsertResult{}, err
	}

	var state upsertState
	operation := func() error {
		out, err := s.upsertOnce(ctx, addr, view)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		state = out
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		if errors.Is(err, ErrConflict) {
			return UpsertResult{}, apperrors.Wrap(apperrors.CodeStorageConflict, "upsert retries exhausted", err)
		}
		return UpsertResult{}, err
	}

	for _, discrepancy := range state.result.Discrepancies {
		s.emit(ctx, EventDiscrepancy, state.result.Prediction.ID,
			string(discrepancy.Kind)+":"+discrepancy.Field)
	}
	if state.dispatch {
		s.dispatchTransition(ctx, state)
	}
	return state.result, nil
}

func (s *Service) upsertOnce(ctx context.Context, addr string, view *Prediction) (upsertState, error) {
	now := s.clock().UTC()
	var state upsertState

	err := s.store.Update(ctx, func(tx Tx) error {
		state = upsertState{}

		user, err := tx.GetUser(ctx, addr)
		userCreated := false
		switch {
		case err == nil:
			if user.Addr != addr {
				return apperrors.New(apperrors.CodeIdentityMismatch, "stored user identity does not match caller")
			}
			existing := user
			state.oldUser = &existing
		case errors.Is(err, ErrNotFound):
			user = User{
				Addr:          addr,
				DidAgreeTerms: true,
				CreateDate:    ToMillis(now),
				UpdateDate:    ToMillis(now),
			}
			userCreated = true
		default:
			return err
		}

		var stored *Prediction
		storedPred, err := tx.GetPrediction(ctx, view.ID)
		switch {
		case err == nil:
			if storedPred.Owner != addr {
				return apperrors.New(apperrors.CodePredictionOwnerMismatch, "stored prediction owner does not match caller")
			}
			stored = &storedPred
		case errors.Is(err, ErrNotFound):
			stored = nil
		default:
			return err
		}

		oldStatus := StatusNone
		if stored != nil {
			oldStatus = Status(*stored, nil)
			state.oldPrediction = stored
		}

		claimed := view.Clone()
		claimed.Owner = addr
		merged := Merge(stored, &claimed)
		if stored == nil {
			if err := validateFirstWrite(merged); err != nil {
				return err
			}
		}
		rectified, flags := Rectify(stored, merged, now)

		if err := tx.PutPrediction(ctx, rectified); err != nil {
			return err
		}
		if userCreated {
			if err := tx.PutUser(ctx, user); err != nil {
				return err
			}
		}

		newStatus := Status(rectified, nil)
		state.result = UpsertResult{
			Prediction:    rectified,
			OldStatus:     oldStatus,
			NewStatus:     newStatus,
			Discrepancies: flags,
		}
		state.newUser = user
		state.dispatch = newStatus == StatusConfirmedOK && oldStatus != StatusConfirmedOK
		return nil
	})
	if err != nil {
		return upsertState{}, err
	}
	return state, nil
}

func (s *Service) dispatchTransition(ctx context.Context, state upsertState) {
	if s.dispatcher == nil {
		return
	}
	event := TransitionEvent{
		OldStatus:     state.result.OldStatus,
		NewStatus:     state.result.NewStatus,
		OldUser:       state.oldUser,
		NewUser:       state.newUser,
		OldPrediction: state.oldPrediction,
		NewPrediction: state.result.Prediction,
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = s.dispatcher.Enqueue(ctx, payload)
	}
	if err != nil {
		log.Printf("dispatch transition for prediction %s: %v", state.result.Prediction.ID, err)
		s.emit(ctx, EventDispatchFailure, state.result.Prediction.ID, err.Error())
	}
}

func (s *Service) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryDelay
	return b
}

func (s *Service) emit(ctx context.Context, kind, key, detail string) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, kind, key, detail)
}

// validateView rejects malformed partial views before any store access.
func validateView(addr string, view *Prediction) error {
	if addr == "" {
		return apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	if view == nil {
		return apperrors.New(apperrors.CodePredictionInvalid, "prediction view is required")
	}
	if view.ID == "" {
		return apperrors.New(apperrors.CodePredictionInvalid, "prediction id is required")
	}
	if view.Owner != "" && view.Owner != addr {
		return apperrors.New(apperrors.CodePredictionInvalid, "prediction owner does not match caller")
	}
	if view.Game != "" && !ValidGame(view.Game) {
		return apperrors.New(apperrors.CodePredictionInvalidGame, "unsupported game")
	}
	if view.CreateDate < 0 || view.UpdateDate < 0 {
		return apperrors.New(apperrors.CodePredictionInvalid, "timestamps must not be negative")
	}
	for _, outcome := range []*Outcome{view.SubmissionOutcome, view.ConfirmationOutcome, view.VerificationOutcome} {
		if outcome != nil && *outcome == "" {
			return apperrors.New(apperrors.CodePredictionInvalid, "outcome must not be empty")
		}
	}
	if view.Correct != nil {
		switch *view.Correct {
		case VerdictTrue, VerdictFalse, VerdictNotApplicable:
		default:
			return apperrors.New(apperrors.CodePredictionInvalid, "unsupported verdict")
		}
	}
	return nil
}

// validateFirstWrite requires the foundational fields on record creation.
func validateFirstWrite(merged Prediction) error {
	if merged.Game == "" || merged.Contract == "" || merged.Value == "" || merged.CreateDate == 0 {
		return apperrors.New(apperrors.CodePredictionInvalid, "first write must carry game, contract, value, and createDate")
	}
	return nil
}
