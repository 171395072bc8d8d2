package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a transaction lost to a concurrent writer and can
	// be retried with fresh reads.
	ErrConflict = errors.New("transaction conflict")
)

// QueryOperator compares prediction create dates in range queries.
type QueryOperator string

const (
	OperatorEqual          QueryOperator = "="
	OperatorLess           QueryOperator = "<"
	OperatorLessOrEqual    QueryOperator = "<="
	OperatorGreater        QueryOperator = ">"
	OperatorGreaterOrEqual QueryOperator = ">="
)

// ValidOperator reports whether op is a supported comparison operator.
func ValidOperator(op QueryOperator) bool {
	switch op {
	case OperatorEqual, OperatorLess, OperatorLessOrEqual, OperatorGreater, OperatorGreaterOrEqual:
		return true
	}
	return false
}

// PredictionQuery filters and orders a range query over one owner's
// predictions.
type PredictionQuery struct {
	Owner        string
	Game         Game // empty means all games
	CreateDate   int64
	Operator     QueryOperator
	Descending   bool
	Limit        int
	ExcludingIDs []string
}

// PredictionPage is one range query result with a has-more marker.
type PredictionPage struct {
	Predictions []Prediction
	HasMore     bool
}

// Tx exposes the reads and staged writes available inside one transaction.
// Staged writes become visible only when the surrounding Update commits.
type Tx interface {
	GetUser(ctx context.Context, addr string) (User, error)
	PutUser(ctx context.Context, user User) error
	GetPrediction(ctx context.Context, id string) (Prediction, error)
	PutPrediction(ctx context.Context, pred Prediction) error
}

// Store is the persistence boundary for the predictions service: a
// transactional read-modify-write contract with optimistic conflict
// signaling, point lookups, and range queries.
//
// Update runs fn inside one serialized transaction; when the underlying store
// detects a concurrent conflicting write it returns ErrConflict and the
// caller owns the retry policy.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error

	GetUser(ctx context.Context, addr string) (User, error)
	GetPrediction(ctx context.Context, id string) (Prediction, error)
	GetPredictions(ctx context.Context, owner string, ids []string) ([]Prediction, error)
	GetNewestPrediction(ctx context.Context, owner string, game Game) (Prediction, error)
	QueryPredictions(ctx context.Context, query PredictionQuery) (PredictionPage, error)

	PutNewsletterEmail(ctx context.Context, record NewsletterEmail) error

	GetGameStats(ctx context.Context, owner string, game Game) (GameStats, error)
	PutGameStats(ctx context.Context, stats GameStats) error
}

// TelemetryEvent is one operational observability record.
type TelemetryEvent struct {
	Timestamp int64
	Kind      string
	Key       string
	Detail    string
}

// TelemetryStore appends operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, event TelemetryEvent) error
}
