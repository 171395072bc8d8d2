package domain

// PredStatus is the single coarse lifecycle state derived from a prediction's
// raw fields.
type PredStatus string

const (
	// StatusNone is the sentinel for "no stored record".
	StatusNone PredStatus = ""
	// StatusInit means no phase has reported yet.
	StatusInit PredStatus = "INIT"
	// StatusPutOK means the submission transaction succeeded.
	StatusPutOK PredStatus = "PUT_OK"
	// StatusPutError means the submission phase failed.
	StatusPutError PredStatus = "PUT_ERROR"
	// StatusInMempool means the submission transaction is known but unresolved.
	StatusInMempool PredStatus = "IN_MEMPOOL"
	// StatusConfirmedOK means on-chain confirmation succeeded.
	StatusConfirmedOK PredStatus = "CONFIRMED_OK"
	// StatusConfirmedError means on-chain confirmation failed.
	StatusConfirmedError PredStatus = "CONFIRMED_ERROR"
	// StatusVerifiable means the target burn height has passed and the
	// prediction can be verified.
	StatusVerifiable PredStatus = "VERIFIABLE"
	// StatusVerifying means outcome verification is underway.
	StatusVerifying PredStatus = "VERIFYING"
	// StatusVerifiedOK means outcome verification succeeded.
	StatusVerifiedOK PredStatus = "VERIFIED_OK"
	// StatusVerifiedError means outcome verification failed.
	StatusVerifiedError PredStatus = "VERIFIED_ERROR"
)

// Status derives the lifecycle status of a prediction. The evaluation is a
// strict priority chain: a terminal error at an earlier phase always shadows
// any later-phase signal a stale writer might still be racing to deliver.
// chainHeight, when known, refines CONFIRMED_OK into VERIFIABLE once the
// target burn height has passed; it is caller-supplied and never persisted.
func Status(p Prediction, chainHeight *int64) PredStatus {
	switch {
	case p.SubmissionOutcome != nil && p.SubmissionOutcome.Failed():
		return StatusPutError
	case p.ConfirmationOutcome != nil && p.ConfirmationOutcome.Failed():
		return StatusConfirmedError
	case p.VerificationOutcome != nil && p.VerificationOutcome.Failed():
		return StatusVerifiedError
	case p.VerificationOutcome != nil && p.VerificationOutcome.Success():
		return StatusVerifiedOK
	case p.VerificationTxID != nil:
		return StatusVerifying
	case p.ConfirmationOutcome != nil && p.ConfirmationOutcome.Success():
		if p.TargetBurnHeight != nil && chainHeight != nil && *p.TargetBurnHeight < *chainHeight {
			return StatusVerifiable
		}
		return StatusConfirmedOK
	case p.SubmissionOutcome != nil && p.SubmissionOutcome.Success():
		return StatusPutOK
	case p.SubmissionTxID != nil:
		return StatusInMempool
	default:
		return StatusInit
	}
}
