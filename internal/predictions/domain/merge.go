package domain

// Merge combines partial views of the same prediction into one candidate
// record. Views are ordered oldest stored view first, newest incoming view
// last. Later views overlay earlier ones field by field, with two exceptions:
// the three phase outcome fields follow dominance rules (success is terminal,
// otherwise the latest non-pending value wins, and pending never demotes a
// known value) and UpdateDate takes the maximum value seen. Nil views are
// skipped. The result is not yet guaranteed consistent; Rectify enforces the
// record invariants.
func Merge(views ...*Prediction) Prediction {
	var acc Prediction
	for _, view := range views {
		if view == nil {
			continue
		}
		overlay(&acc, *view)
	}
	return acc
}

func overlay(acc *Prediction, view Prediction) {
	if view.ID != "" {
		acc.ID = view.ID
	}
	if view.Owner != "" {
		acc.Owner = view.Owner
	}
	if view.Game != "" {
		acc.Game = view.Game
	}
	if view.Contract != "" {
		acc.Contract = view.Contract
	}
	if view.Value != "" {
		acc.Value = view.Value
	}
	if view.CreateDate != 0 {
		acc.CreateDate = view.CreateDate
	}
	if view.UpdateDate > acc.UpdateDate {
		acc.UpdateDate = view.UpdateDate
	}

	if view.SubmissionTxID != nil {
		acc.SubmissionTxID = cloneStr(view.SubmissionTxID)
	}
	acc.SubmissionOutcome = mergeOutcome(acc.SubmissionOutcome, view.SubmissionOutcome)
	acc.ConfirmationOutcome = mergeOutcome(acc.ConfirmationOutcome, view.ConfirmationOutcome)
	if view.AnchorHeight != nil {
		acc.AnchorHeight = cloneInt(view.AnchorHeight)
	}
	if view.AnchorBurnHeight != nil {
		acc.AnchorBurnHeight = cloneInt(view.AnchorBurnHeight)
	}
	if view.SequenceNumber != nil {
		acc.SequenceNumber = cloneInt(view.SequenceNumber)
	}
	if view.TargetBurnHeight != nil {
		acc.TargetBurnHeight = cloneInt(view.TargetBurnHeight)
	}
	if view.TargetHeight != nil {
		acc.TargetHeight = cloneInt(view.TargetHeight)
	}
	if view.VerificationTxID != nil {
		acc.VerificationTxID = cloneStr(view.VerificationTxID)
	}
	acc.VerificationOutcome = mergeOutcome(acc.VerificationOutcome, view.VerificationOutcome)
	if view.AnchorPrice != nil {
		acc.AnchorPrice = cloneFloat(view.AnchorPrice)
	}
	if view.TargetPrice != nil {
		acc.TargetPrice = cloneFloat(view.TargetPrice)
	}
	if view.Correct != nil {
		acc.Correct = cloneVerdict(view.Correct)
	}
}

// mergeOutcome applies the dominance rules for one tri-state phase outcome.
func mergeOutcome(current, incoming *Outcome) *Outcome {
	if incoming == nil {
		return current
	}
	if current == nil {
		return cloneOutcome(incoming)
	}
	if current.Success() {
		return current
	}
	if incoming.Success() {
		return cloneOutcome(incoming)
	}
	if incoming.Pending() {
		return current
	}
	return cloneOutcome(incoming)
}
