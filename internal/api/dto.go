package api

import (
	"github.com/louisbranch/augurrank/internal/auth"
	"github.com/louisbranch/augurrank/internal/predictions/domain"
)

// signedRequest is the identity proof envelope shared by authenticated
// endpoints. Field names match the original wire format.
type signedRequest struct {
	StxAddr   string `json:"stxAddr"`
	StxTstStr string `json:"stxTstStr"`
	StxPubKey string `json:"stxPubKey"`
	StxSigStr string `json:"stxSigStr"`
}

func (r signedRequest) proof() auth.Proof {
	return auth.Proof{
		Addr:      r.StxAddr,
		Challenge: r.StxTstStr,
		PubKey:    r.StxPubKey,
		Sig:       r.StxSigStr,
	}
}

// predJSON is the wire form of one prediction. Absent lifecycle fields are
// omitted rather than sent as null.
type predJSON struct {
	ID         string      `json:"id"`
	Owner      string      `json:"owner,omitempty"`
	Game       domain.Game `json:"game,omitempty"`
	Contract   string      `json:"contract,omitempty"`
	Value      string      `json:"value,omitempty"`
	CreateDate int64       `json:"createDate,omitempty"`
	UpdateDate int64       `json:"updateDate,omitempty"`

	SubmissionTxID      *string         `json:"submissionTxId,omitempty"`
	SubmissionOutcome   *domain.Outcome `json:"submissionOutcome,omitempty"`
	ConfirmationOutcome *domain.Outcome `json:"confirmationOutcome,omitempty"`
	AnchorHeight        *int64          `json:"anchorHeight,omitempty"`
	AnchorBurnHeight    *int64          `json:"anchorBurnHeight,omitempty"`
	SequenceNumber      *int64          `json:"sequenceNumber,omitempty"`
	TargetBurnHeight    *int64          `json:"targetBurnHeight,omitempty"`
	TargetHeight        *int64          `json:"targetHeight,omitempty"`
	VerificationTxID    *string         `json:"verificationTxId,omitempty"`
	VerificationOutcome *domain.Outcome `json:"verificationOutcome,omitempty"`
	AnchorPrice         *float64        `json:"anchorPrice,omitempty"`
	TargetPrice         *float64        `json:"targetPrice,omitempty"`
	Correct             *domain.Verdict `json:"correct,omitempty"`

	Status domain.PredStatus `json:"status,omitempty"`
}

func (p predJSON) toDomain() domain.Prediction {
	return domain.Prediction{
		ID:                  p.ID,
		Owner:               p.Owner,
		Game:                p.Game,
		Contract:            p.Contract,
		Value:               p.Value,
		CreateDate:          p.CreateDate,
		UpdateDate:          p.UpdateDate,
		SubmissionTxID:      p.SubmissionTxID,
		SubmissionOutcome:   p.SubmissionOutcome,
		ConfirmationOutcome: p.ConfirmationOutcome,
		AnchorHeight:        p.AnchorHeight,
		AnchorBurnHeight:    p.AnchorBurnHeight,
		SequenceNumber:      p.SequenceNumber,
		TargetBurnHeight:    p.TargetBurnHeight,
		TargetHeight:        p.TargetHeight,
		VerificationTxID:    p.VerificationTxID,
		VerificationOutcome: p.VerificationOutcome,
		AnchorPrice:         p.AnchorPrice,
		TargetPrice:         p.TargetPrice,
		Correct:             p.Correct,
	}
}

func predToJSON(pred domain.Prediction) predJSON {
	clone := pred.Clone()
	return predJSON{
		ID:                  clone.ID,
		Owner:               clone.Owner,
		Game:                clone.Game,
		Contract:            clone.Contract,
		Value:               clone.Value,
		CreateDate:          clone.CreateDate,
		UpdateDate:          clone.UpdateDate,
		SubmissionTxID:      clone.SubmissionTxID,
		SubmissionOutcome:   clone.SubmissionOutcome,
		ConfirmationOutcome: clone.ConfirmationOutcome,
		AnchorHeight:        clone.AnchorHeight,
		AnchorBurnHeight:    clone.AnchorBurnHeight,
		SequenceNumber:      clone.SequenceNumber,
		TargetBurnHeight:    clone.TargetBurnHeight,
		TargetHeight:        clone.TargetHeight,
		VerificationTxID:    clone.VerificationTxID,
		VerificationOutcome: clone.VerificationOutcome,
		AnchorPrice:         clone.AnchorPrice,
		TargetPrice:         clone.TargetPrice,
		Correct:             clone.Correct,
		Status:              domain.Status(clone, nil),
	}
}

func predsToJSON(preds []domain.Prediction) []predJSON {
	out := make([]predJSON, 0, len(preds))
	for _, pred := range preds {
		out = append(out, predToJSON(pred))
	}
	return out
}

// statsJSON is the wire form of one stats aggregate.
type statsJSON struct {
	Owner         string      `json:"owner"`
	Game          domain.Game `json:"game,omitempty"`
	Verified      int         `json:"verified"`
	Correct       int         `json:"correct"`
	Wrong         int         `json:"wrong"`
	NotApplicable int         `json:"notApplicable"`
	CurrentStreak int         `json:"currentStreak"`
	MaxStreak     int         `json:"maxStreak"`
	UpdateDate    int64       `json:"updateDate,omitempty"`
}

func statsToJSON(stats domain.GameStats) statsJSON {
	return statsJSON{
		Owner:         stats.Owner,
		Game:          stats.Game,
		Verified:      stats.Verified,
		Correct:       stats.Correct,
		Wrong:         stats.Wrong,
		NotApplicable: stats.NotApplicable,
		CurrentStreak: stats.CurrentStreak,
		MaxStreak:     stats.MaxStreak,
		UpdateDate:    stats.UpdateDate,
	}
}
