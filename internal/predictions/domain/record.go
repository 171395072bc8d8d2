// Package domain implements the prediction reconciliation engine: the record
// model, the partial-view merge, the rectification pass, lifecycle status
// derivation, and the transactional upsert coordinator.
package domain

import (
	"strings"
	"time"
)

// Game identifies one supported prediction game.
type Game string

const (
	// GameBTC is the Bitcoin up-or-down game.
	GameBTC Game = "BTC"
	// GameSTX is the Stacks up-or-down game.
	GameSTX Game = "STX"
)

var supportedGames = map[Game]struct{}{
	GameBTC: {},
	GameSTX: {},
}

// ValidGame reports whether game is one of the supported games.
func ValidGame(game Game) bool {
	_, ok := supportedGames[game]
	return ok
}

// Outcome is the tri-state result of one asynchronous phase. The values
// "pending" and "success" are reserved; any other non-empty value is a
// failure carrying that value as its detail.
type Outcome string

const (
	// OutcomePending means the phase has started but not resolved.
	OutcomePending Outcome = "pending"
	// OutcomeSuccess means the phase resolved successfully.
	OutcomeSuccess Outcome = "success"
)

// Pending reports whether the outcome is the pending state.
func (o Outcome) Pending() bool { return o == OutcomePending }

// Success reports whether the outcome is the success state.
func (o Outcome) Success() bool { return o == OutcomeSuccess }

// Failed reports whether the outcome carries a failure detail.
func (o Outcome) Failed() bool { return o != "" && !o.Pending() && !o.Success() }

// Verdict is the verified result of the prediction itself.
type Verdict string

const (
	// VerdictTrue means the prediction was correct.
	VerdictTrue Verdict = "TRUE"
	// VerdictFalse means the prediction was wrong.
	VerdictFalse Verdict = "FALSE"
	// VerdictNotApplicable means the prediction could not be judged.
	VerdictNotApplicable Verdict = "N/A"
)

// Prediction is the canonical record reconciled from partial writer views.
//
// Foundational fields (ID, Owner, Game, Contract, Value, CreateDate) are set
// once at creation and never legitimately change. The optional lifecycle
// fields are each owned by one phase-specific writer and arrive in no
// particular order; absence is modeled as a nil pointer. Timestamps are epoch
// milliseconds UTC.
type Prediction struct {
	ID         string
	Owner      string
	Game       Game
	Contract   string
	Value      string
	CreateDate int64
	UpdateDate int64

	SubmissionTxID      *string
	SubmissionOutcome   *Outcome
	ConfirmationOutcome *Outcome
	AnchorHeight        *int64
	AnchorBurnHeight    *int64
	SequenceNumber      *int64
	TargetBurnHeight    *int64
	TargetHeight        *int64
	VerificationTxID    *string
	VerificationOutcome *Outcome
	AnchorPrice         *float64
	TargetPrice         *float64
	Correct             *Verdict
}

// Clone returns a deep copy of the prediction.
func (p Prediction) Clone() Prediction {
	out := p
	out.SubmissionTxID = cloneStr(p.SubmissionTxID)
	out.SubmissionOutcome = cloneOutcome(p.SubmissionOutcome)
	out.ConfirmationOutcome = cloneOutcome(p.ConfirmationOutcome)
	out.AnchorHeight = cloneInt(p.AnchorHeight)
	out.AnchorBurnHeight = cloneInt(p.AnchorBurnHeight)
	out.SequenceNumber = cloneInt(p.SequenceNumber)
	out.TargetBurnHeight = cloneInt(p.TargetBurnHeight)
	out.TargetHeight = cloneInt(p.TargetHeight)
	out.VerificationTxID = cloneStr(p.VerificationTxID)
	out.VerificationOutcome = cloneOutcome(p.VerificationOutcome)
	out.AnchorPrice = cloneFloat(p.AnchorPrice)
	out.TargetPrice = cloneFloat(p.TargetPrice)
	out.Correct = cloneVerdict(p.Correct)
	return out
}

// User is the owner record keyed by address identity.
type User struct {
	Addr          string
	Username      string
	AvatarURL     string
	Bio           string
	DidAgreeTerms bool
	IsVerified    bool
	CreateDate    int64
	UpdateDate    int64
}

// NewsletterEmail is one newsletter sign-up record keyed by email.
type NewsletterEmail struct {
	Email      string
	Status     string
	CreateDate int64
	UpdateDate int64
}

// NewsletterStatusActive marks an active newsletter sign-up.
const NewsletterStatusActive = "Active"

// GameStats aggregates verified predictions for one owner and game.
type GameStats struct {
	Owner         string
	Game          Game
	Verified      int
	Correct       int
	Wrong         int
	NotApplicable int
	CurrentStreak int
	MaxStreak     int
	UpdateDate    int64
}

// ToMillis converts a time to epoch milliseconds UTC.
func ToMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// FromMillis converts epoch milliseconds to a UTC time.
func FromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// NormalizeAddr canonicalizes a caller-supplied address identity. Addresses
// are case-insensitive on the wire and stored lowercase.
func NormalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func cloneStr(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneOutcome(v *Outcome) *Outcome {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneVerdict(v *Verdict) *Verdict {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
