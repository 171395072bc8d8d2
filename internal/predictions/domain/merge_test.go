package domain

import (
	"testing"
)

func outcome(o Outcome) *Outcome { return &o }
func str(s string) *string       { return &s }
func num(n int64) *int64         { return &n }
func price(f float64) *float64   { return &f }
func verdict(v Verdict) *Verdict { return &v }

func TestMergeOverlaysLaterViews(t *testing.T) {
	t.Parallel()

	stored := &Prediction{
		ID:         "pred-1",
		Owner:      "ar1alice",
		Game:       GameBTC,
		Contract:   "augur-v1",
		Value:      "up",
		CreateDate: 1000,
		UpdateDate: 1000,
	}
	view := &Prediction{
		ID:                "pred-1",
		SubmissionTxID:    str("0xabc"),
		SubmissionOutcome: outcome(OutcomePending),
		UpdateDate:        2000,
	}

	merged := Merge(stored, view)

	if merged.Game != GameBTC || merged.Contract != "augur-v1" || merged.Value != "up" {
		t.Errorf("foundational fields lost: %+v", merged)
	}
	if merged.SubmissionTxID == nil || *merged.SubmissionTxID != "0xabc" {
		t.Errorf("SubmissionTxID = %v, want 0xabc", merged.SubmissionTxID)
	}
	if merged.SubmissionOutcome == nil || !merged.SubmissionOutcome.Pending() {
		t.Errorf("SubmissionOutcome = %v, want pending", merged.SubmissionOutcome)
	}
	if merged.UpdateDate != 2000 {
		t.Errorf("UpdateDate = %d, want 2000", merged.UpdateDate)
	}
}

func TestMergeSkipsNilViews(t *testing.T) {
	t.Parallel()

	view := &Prediction{ID: "pred-1", Game: GameSTX}
	merged := Merge(nil, view, nil)
	if merged.ID != "pred-1" || merged.Game != GameSTX {
		t.Errorf("Merge() = %+v", merged)
	}
}

func TestMergeAbsentFieldsDoNotErase(t *testing.T) {
	t.Parallel()

	stored := &Prediction{
		ID:             "pred-1",
		AnchorHeight:   num(120),
		AnchorPrice:    price(64000),
		SubmissionTxID: str("0xabc"),
	}
	view := &Prediction{ID: "pred-1", SequenceNumber: num(7)}

	merged := Merge(stored, view)

	if merged.AnchorHeight == nil || *merged.AnchorHeight != 120 {
		t.Errorf("AnchorHeight = %v, want 120", merged.AnchorHeight)
	}
	if merged.AnchorPrice == nil || *merged.AnchorPrice != 64000 {
		t.Errorf("AnchorPrice = %v, want 64000", merged.AnchorPrice)
	}
	if merged.SequenceNumber == nil || *merged.SequenceNumber != 7 {
		t.Errorf("SequenceNumber = %v, want 7", merged.SequenceNumber)
	}
}

func TestMergeUpdateDateTakesMax(t *testing.T) {
	t.Parallel()

	newer := &Prediction{ID: "pred-1", UpdateDate: 3000}
	older := &Prediction{ID: "pred-1", UpdateDate: 2000}

	merged := Merge(newer, older)
	if merged.UpdateDate != 3000 {
		t.Errorf("UpdateDate = %d, want 3000", merged.UpdateDate)
	}
}

func TestMergeOutcomeDominance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		current  *Outcome
		incoming *Outcome
		want     *Outcome
	}{
		{name: "nil incoming keeps current", current: outcome(OutcomePending), incoming: nil, want: outcome(OutcomePending)},
		{name: "nil current takes incoming", current: nil, incoming: outcome("abort_by_post_condition"), want: outcome("abort_by_post_condition")},
		{name: "success is terminal", current: outcome(OutcomeSuccess), incoming: outcome("abort_by_response"), want: outcome(OutcomeSuccess)},
		{name: "success replaces failure", current: outcome("abort_by_response"), incoming: outcome(OutcomeSuccess), want: outcome(OutcomeSuccess)},
		{name: "pending never demotes", current: outcome("abort_by_response"), incoming: outcome(OutcomePending), want: outcome("abort_by_response")},
		{name: "pending never demotes success", current: outcome(OutcomeSuccess), incoming: outcome(OutcomePending), want: outcome(OutcomeSuccess)},
		{name: "latest failure wins", current: outcome("abort_by_response"), incoming: outcome("abort_by_post_condition"), want: outcome("abort_by_post_condition")},
		{name: "failure replaces pending", current: outcome(OutcomePending), incoming: outcome("abort_by_response"), want: outcome("abort_by_response")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := mergeOutcome(tc.current, tc.incoming)
			switch {
			case tc.want == nil && got != nil:
				t.Errorf("mergeOutcome() = %v, want nil", *got)
			case tc.want != nil && (got == nil || *got != *tc.want):
				t.Errorf("mergeOutcome() = %v, want %v", got, *tc.want)
			}
		})
	}
}

func TestMergeClonesPointerFields(t *testing.T) {
	t.Parallel()

	view := &Prediction{ID: "pred-1", AnchorHeight: num(120)}
	merged := Merge(view)

	*view.AnchorHeight = 999
	if *merged.AnchorHeight != 120 {
		t.Errorf("merged AnchorHeight aliases the view, got %d", *merged.AnchorHeight)
	}
}
