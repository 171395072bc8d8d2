package domain

import "time"

// MaxCreateDateAge bounds how far in the past a first-time submission's
// CreateDate may lie before it is replaced with the server clock.
const MaxCreateDateAge = time.Hour

// DiscrepancyKind classifies one silently corrected disagreement between a
// candidate record and previously trusted facts.
type DiscrepancyKind string

const (
	// DiscrepancyImmutableOverwrite means a caller tried to change a
	// foundational field and the stored value was kept.
	DiscrepancyImmutableOverwrite DiscrepancyKind = "immutable_overwrite"
	// DiscrepancyDependentRestored means a caller dropped a dependent field
	// while its identifying field survived, and the stored value was restored.
	DiscrepancyDependentRestored DiscrepancyKind = "dependent_restored"
	// DiscrepancyCreateDateClamped means a first write carried a CreateDate in
	// the future or beyond the staleness window and was clamped to now.
	DiscrepancyCreateDateClamped DiscrepancyKind = "create_date_clamped"
)

// Discrepancy records one rectified disagreement for observability. It is a
// warning, never a failure.
type Discrepancy struct {
	Field string
	Kind  DiscrepancyKind
}

// Rectify enforces the record invariants on a merge candidate against the
// previously stored record (nil for a first write) and returns the record to
// persist together with any corrected discrepancies.
func Rectify(stored *Prediction, candidate Prediction, now time.Time) (Prediction, []Discrepancy) {
	out := candidate.Clone()
	var flags []Discrepancy

	if stored != nil {
		flags = append(flags, restoreFoundational(stored, &out)...)
		flags = append(flags, restoreDependents(stored, &out)...)
	}
	stripOrphanedDependents(&out)

	nowMillis := ToMillis(now)
	if stored != nil {
		// The write is happening now, regardless of the timestamps the
		// partial views carried.
		out.UpdateDate = nowMillis
		return out, flags
	}

	out.UpdateDate = out.CreateDate
	if out.CreateDate > nowMillis || out.CreateDate < nowMillis-MaxCreateDateAge.Milliseconds() {
		out.CreateDate = nowMillis
		out.UpdateDate = nowMillis
		flags = append(flags, Discrepancy{Field: "createDate", Kind: DiscrepancyCreateDateClamped})
	}
	return out, flags
}

func restoreFoundational(stored *Prediction, out *Prediction) []Discrepancy {
	var flags []Discrepancy
	flag := func(field string) {
		flags = append(flags, Discrepancy{Field: field, Kind: DiscrepancyImmutableOverwrite})
	}
	if stored.ID != "" && out.ID != stored.ID {
		out.ID = stored.ID
		flag("id")
	}
	if stored.Owner != "" && out.Owner != stored.Owner {
		out.Owner = stored.Owner
		flag("owner")
	}
	if stored.Game != "" && out.Game != stored.Game {
		out.Game = stored.Game
		flag("game")
	}
	if stored.Contract != "" && out.Contract != stored.Contract {
		out.Contract = stored.Contract
		flag("contract")
	}
	if stored.Value != "" && out.Value != stored.Value {
		out.Value = stored.Value
		flag("value")
	}
	if stored.CreateDate != 0 && out.CreateDate != stored.CreateDate {
		out.CreateDate = stored.CreateDate
		flag("createDate")
	}
	return flags
}

// restoreDependents puts back dependent fields the candidate lost while still
// carrying the identifying field of the phase that owns them.
func restoreDependents(stored *Prediction, out *Prediction) []Discrepancy {
	var flags []Discrepancy
	flag := func(field string) {
		flags = append(flags, Discrepancy{Field: field, Kind: DiscrepancyDependentRestored})
	}

	if out.SubmissionTxID != nil {
		if out.SubmissionOutcome == nil && stored.SubmissionOutcome != nil {
			out.SubmissionOutcome = cloneOutcome(stored.SubmissionOutcome)
			flag("submissionOutcome")
		}
		if out.ConfirmationOutcome == nil && stored.ConfirmationOutcome != nil {
			out.ConfirmationOutcome = cloneOutcome(stored.ConfirmationOutcome)
			flag("confirmationOutcome")
		}
		if out.AnchorHeight == nil && stored.AnchorHeight != nil {
			out.AnchorHeight = cloneInt(stored.AnchorHeight)
			flag("anchorHeight")
		}
		if out.AnchorBurnHeight == nil && stored.AnchorBurnHeight != nil {
			out.AnchorBurnHeight = cloneInt(stored.AnchorBurnHeight)
			flag("anchorBurnHeight")
		}
		if out.SequenceNumber == nil && stored.SequenceNumber != nil {
			out.SequenceNumber = cloneInt(stored.SequenceNumber)
			flag("sequenceNumber")
		}
		if out.TargetBurnHeight == nil && stored.TargetBurnHeight != nil {
			out.TargetBurnHeight = cloneInt(stored.TargetBurnHeight)
			flag("targetBurnHeight")
		}
	}

	if out.VerificationTxID != nil {
		if out.TargetHeight == nil && stored.TargetHeight != nil {
			out.TargetHeight = cloneInt(stored.TargetHeight)
			flag("targetHeight")
		}
		if out.VerificationOutcome == nil && stored.VerificationOutcome != nil {
			out.VerificationOutcome = cloneOutcome(stored.VerificationOutcome)
			flag("verificationOutcome")
		}
		if out.AnchorPrice == nil && stored.AnchorPrice != nil {
			out.AnchorPrice = cloneFloat(stored.AnchorPrice)
			flag("anchorPrice")
		}
		if out.TargetPrice == nil && stored.TargetPrice != nil {
			out.TargetPrice = cloneFloat(stored.TargetPrice)
			flag("targetPrice")
		}
		if out.Correct == nil && stored.Correct != nil {
			out.Correct = cloneVerdict(stored.Correct)
			flag("correct")
		}
	}

	return flags
}

// stripOrphanedDependents drops dependent fields whose identifying field is
// genuinely absent from the candidate.
func stripOrphanedDependents(out *Prediction) {
	if out.SubmissionTxID == nil {
		out.SubmissionOutcome = nil
		out.ConfirmationOutcome = nil
		out.AnchorHeight = nil
		out.AnchorBurnHeight = nil
		out.SequenceNumber = nil
		out.TargetBurnHeight = nil
	}
	if out.VerificationTxID == nil {
		out.TargetHeight = nil
		out.VerificationOutcome = nil
		out.AnchorPrice = nil
		out.TargetPrice = nil
		out.Correct = nil
	}
}
