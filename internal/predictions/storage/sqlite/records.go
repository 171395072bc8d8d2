package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/augurrank/internal/predictions/domain"
)

const predictionColumns = `id, owner, game, contract, value, create_date, update_date,
submission_tx_id, submission_outcome, confirmation_outcome,
anchor_height, anchor_burn_height, sequence_number, target_burn_height, target_height,
verification_tx_id, verification_outcome, anchor_price, target_price, correct`

func getUser(ctx context.Context, db execer, addr string) (domain.User, error) {
	if addr == "" {
		return domain.User{}, fmt.Errorf("addr is required")
	}

	var user domain.User
	row := db.QueryRowContext(ctx, `
SELECT addr, username, avatar_url, bio, did_agree_terms, is_verified, create_date, update_date
FROM users
WHERE addr = ?
`, addr)
	err := row.Scan(&user.Addr, &user.Username, &user.AvatarURL, &user.Bio,
		&user.DidAgreeTerms, &user.IsVerified, &user.CreateDate, &user.UpdateDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func putUser(ctx context.Context, db execer, user domain.User) error {
	if user.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO users (addr, username, avatar_url, bio, did_agree_terms, is_verified, create_date, update_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (addr) DO UPDATE SET
    username = excluded.username,
    avatar_url = excluded.avatar_url,
    bio = excluded.bio,
    did_agree_terms = excluded.did_agree_terms,
    is_verified = excluded.is_verified,
    update_date = excluded.update_date
`, user.Addr, user.Username, user.AvatarURL, user.Bio,
		user.DidAgreeTerms, user.IsVerified, user.CreateDate, user.UpdateDate)
	if err != nil {
		return fmt.Errorf("put user: %w", err)
	}
	return nil
}

func getPrediction(ctx context.Context, db execer, id string) (domain.Prediction, error) {
	if id == "" {
		return domain.Prediction{}, fmt.Errorf("id is required")
	}

	row := db.QueryRowContext(ctx, `
SELECT `+predictionColumns+`
FROM predictions
WHERE id = ?
`, id)
	pred, err := scanPrediction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Prediction{}, domain.ErrNotFound
		}
		return domain.Prediction{}, fmt.Errorf("get prediction: %w", err)
	}
	return pred, nil
}

func putPrediction(ctx context.Context, db execer, pred domain.Prediction) error {
	if pred.ID == "" {
		return fmt.Errorf("id is required")
	}
	_, err := db.ExecContext(ctx, `
INSERT INTO predictions (
    id, owner, game, contract, value, create_date, update_date,
    submission_tx_id, submission_outcome, confirmation_outcome,
    anchor_height, anchor_burn_height, sequence_number, target_burn_height, target_height,
    verification_tx_id, verification_outcome, anchor_price, target_price, correct
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    owner = excluded.owner,
    game = excluded.game,
    contract = excluded.contract,
    value = excluded.value,
    create_date = excluded.create_date,
    update_date = excluded.update_date,
    submission_tx_id = excluded.submission_tx_id,
    submission_outcome = excluded.submission_outcome,
    confirmation_outcome = excluded.confirmation_outcome,
    anchor_height = excluded.anchor_height,
    anchor_burn_height = excluded.anchor_burn_height,
    sequence_number = excluded.sequence_number,
    target_burn_height = excluded.target_burn_height,
    target_height = excluded.target_height,
    verification_tx_id = excluded.verification_tx_id,
    verification_outcome = excluded.verification_outcome,
    anchor_price = excluded.anchor_price,
    target_price = excluded.target_price,
    correct = excluded.correct
`, pred.ID, pred.Owner, string(pred.Game), pred.Contract, pred.Value,
		pred.CreateDate, pred.UpdateDate,
		bindString(pred.SubmissionTxID), bindOutcome(pred.SubmissionOutcome), bindOutcome(pred.ConfirmationOutcome),
		bindInt(pred.AnchorHeight), bindInt(pred.AnchorBurnHeight), bindInt(pred.SequenceNumber),
		bindInt(pred.TargetBurnHeight), bindInt(pred.TargetHeight),
		bindString(pred.VerificationTxID), bindOutcome(pred.VerificationOutcome),
		bindFloat(pred.AnchorPrice), bindFloat(pred.TargetPrice), bindVerdict(pred.Correct))
	if err != nil {
		return fmt.Errorf("put prediction: %w", err)
	}
	return nil
}

func scanPrediction(scan func(dest ...any) error) (domain.Prediction, error) {
	var pred domain.Prediction
	var game string
	var submissionTxID, verificationTxID sql.NullString
	var submissionOutcome, confirmationOutcome, verificationOutcome sql.NullString
	var anchorHeight, anchorBurnHeight, sequenceNumber, targetBurnHeight, targetHeight sql.NullInt64
	var anchorPrice, targetPrice sql.NullFloat64
	var correct sql.NullString

	err := scan(&pred.ID, &pred.Owner, &game, &pred.Contract, &pred.Value,
		&pred.CreateDate, &pred.UpdateDate,
		&submissionTxID, &submissionOutcome, &confirmationOutcome,
		&anchorHeight, &anchorBurnHeight, &sequenceNumber, &targetBurnHeight, &targetHeight,
		&verificationTxID, &verificationOutcome, &anchorPrice, &targetPrice, &correct)
	if err != nil {
		return domain.Prediction{}, err
	}

	pred.Game = domain.Game(game)
	pred.SubmissionTxID = nullableString(submissionTxID)
	pred.SubmissionOutcome = nullableOutcome(submissionOutcome)
	pred.ConfirmationOutcome = nullableOutcome(confirmationOutcome)
	pred.AnchorHeight = nullableInt(anchorHeight)
	pred.AnchorBurnHeight = nullableInt(anchorBurnHeight)
	pred.SequenceNumber = nullableInt(sequenceNumber)
	pred.TargetBurnHeight = nullableInt(targetBurnHeight)
	pred.TargetHeight = nullableInt(targetHeight)
	pred.VerificationTxID = nullableString(verificationTxID)
	pred.VerificationOutcome = nullableOutcome(verificationOutcome)
	pred.AnchorPrice = nullableFloat(anchorPrice)
	pred.TargetPrice = nullableFloat(targetPrice)
	pred.Correct = nullableVerdict(correct)
	return pred, nil
}

func collectPredictions(rows *sql.Rows) ([]domain.Prediction, error) {
	preds := []domain.Prediction{}
	for rows.Next() {
		pred, err := scanPrediction(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		preds = append(preds, pred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return preds, nil
}

func bindString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func bindInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func bindFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func bindOutcome(v *domain.Outcome) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func bindVerdict(v *domain.Verdict) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullableInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableOutcome(v sql.NullString) *domain.Outcome {
	if !v.Valid {
		return nil
	}
	o := domain.Outcome(v.String)
	return &o
}

func nullableVerdict(v sql.NullString) *domain.Verdict {
	if !v.Valid {
		return nil
	}
	c := domain.Verdict(v.String)
	return &c
}
