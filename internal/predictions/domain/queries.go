package domain

import (
	"context"
	"errors"
	"sort"

	apperrors "github.com/louisbranch/augurrank/internal/platform/errors"
)

// GameOverview is the per-game view returned to a signed-in caller: the
// newest prediction for the game, the caller's aggregate stats, and profile
// flags.
type GameOverview struct {
	UserFound     bool
	DidAgreeTerms bool
	IsVerified    bool
	Pred          *Prediction
	Stats         *GameStats
}

// MeOverview is the cross-game account view: aggregate stats plus the
// newest-first page of predictions.
type MeOverview struct {
	UserFound bool
	Stats     GameStats
	Preds     []Prediction
	HasMore   bool
}

// GameState loads the caller's newest prediction and stats for one game. A
// previously unseen identity yields UserFound == false and empty fields.
func (s *Service) GameState(ctx context.Context, addr string, game Game) (GameOverview, error) {
	addr = NormalizeAddr(addr)
	if addr == "" {
		return GameOverview{}, apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	if !ValidGame(game) {
		return GameOverview{}, apperrors.New(apperrors.CodePredictionInvalidGame, "unsupported game")
	}

	user, err := s.store.GetUser(ctx, addr)
	if errors.Is(err, ErrNotFound) {
		return GameOverview{}, nil
	}
	if err != nil {
		return GameOverview{}, err
	}

	overview := GameOverview{
		UserFound:     true,
		DidAgreeTerms: user.DidAgreeTerms,
		IsVerified:    user.IsVerified,
	}

	newest, err := s.store.GetNewestPrediction(ctx, addr, game)
	if err == nil {
		overview.Pred = &newest
	} else if !errors.Is(err, ErrNotFound) {
		return GameOverview{}, err
	}

	stats, err := s.store.GetGameStats(ctx, addr, game)
	if err == nil {
		overview.Stats = &stats
	} else if !errors.Is(err, ErrNotFound) {
		return GameOverview{}, err
	}

	return overview, nil
}

// AccountState loads the caller's cross-game stats and the newest-first page
// of predictions, from nowDate backwards. A nowDate of zero or less defaults
// to the service clock.
func (s *Service) AccountState(ctx context.Context, addr string, nowDate int64) (MeOverview, error) {
	addr = NormalizeAddr(addr)
	if addr == "" {
		return MeOverview{}, apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	if nowDate <= 0 {
		nowDate = ToMillis(s.clock().UTC())
	}

	if _, err := s.store.GetUser(ctx, addr); err != nil {
		if errors.Is(err, ErrNotFound) {
			return MeOverview{}, nil
		}
		return MeOverview{}, err
	}

	stats, err := s.accountStats(ctx, addr)
	if err != nil {
		return MeOverview{}, err
	}

	page, err := s.store.QueryPredictions(ctx, PredictionQuery{
		Owner:      addr,
		CreateDate: nowDate,
		Operator:   OperatorLessOrEqual,
		Descending: true,
		Limit:      PageSize,
	})
	if err != nil {
		return MeOverview{}, err
	}

	return MeOverview{
		UserFound: true,
		Stats:     stats,
		Preds:     page.Predictions,
		HasMore:   page.HasMore,
	}, nil
}

// PredsByIDs loads the caller's predictions for up to PageSize ids. Records
// owned by other identities are omitted rather than rejected.
func (s *Service) PredsByIDs(ctx context.Context, addr string, ids []string) ([]Prediction, error) {
	addr = NormalizeAddr(addr)
	if addr == "" {
		return nil, apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	if len(ids) == 0 || len(ids) > PageSize {
		return nil, apperrors.New(apperrors.CodeRequestInvalid, "ids must carry between 1 and 10 entries")
	}
	return s.store.GetPredictions(ctx, addr, ids)
}

// QueryPreds runs a range query over the caller's predictions. An empty game
// spans all games. The query walks away from the createDate pivot: ascending
// for greater-than operators, descending otherwise.
func (s *Service) QueryPreds(ctx context.Context, addr string, game Game, createDate int64, operator QueryOperator, excludingIDs []string) (PredictionPage, error) {
	addr = NormalizeAddr(addr)
	if addr == "" {
		return PredictionPage{}, apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	if game != "" && !ValidGame(game) {
		return PredictionPage{}, apperrors.New(apperrors.CodePredictionInvalidGame, "unsupported game")
	}
	if !ValidOperator(operator) {
		return PredictionPage{}, apperrors.New(apperrors.CodeRequestInvalid, "unsupported operator")
	}
	if len(excludingIDs) > PageSize {
		return PredictionPage{}, apperrors.New(apperrors.CodeRequestInvalid, "too many excluded ids")
	}

	descending := operator == OperatorLess || operator == OperatorLessOrEqual || operator == OperatorEqual
	return s.store.QueryPredictions(ctx, PredictionQuery{
		Owner:        addr,
		Game:         game,
		CreateDate:   createDate,
		Operator:     operator,
		Descending:   descending,
		Limit:        PageSize,
		ExcludingIDs: excludingIDs,
	})
}

// AddNewsletterEmail records one newsletter sign-up; duplicates are no-ops.
func (s *Service) AddNewsletterEmail(ctx context.Context, email string) error {
	now := ToMillis(s.clock().UTC())
	return s.store.PutNewsletterEmail(ctx, NewsletterEmail{
		Email:      email,
		Status:     NewsletterStatusActive,
		CreateDate: now,
		UpdateDate: now,
	})
}

// RefreshGameStats recomputes one owner's aggregate stats for a game from the
// verified predictions on record. Recomputing from scratch keeps duplicate
// task deliveries idempotent.
func (s *Service) RefreshGameStats(ctx context.Context, addr string, game Game) (GameStats, error) {
	addr = NormalizeAddr(addr)
	if addr == "" {
		return GameStats{}, apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	if !ValidGame(game) {
		return GameStats{}, apperrors.New(apperrors.CodePredictionInvalidGame, "unsupported game")
	}

	page, err := s.store.QueryPredictions(ctx, PredictionQuery{
		Owner:      addr,
		Game:       game,
		CreateDate: 0,
		Operator:   OperatorGreaterOrEqual,
		Limit:      statsQueryLimit,
	})
	if err != nil {
		return GameStats{}, err
	}

	stats := ComputeGameStats(addr, game, page.Predictions)
	stats.UpdateDate = ToMillis(s.clock().UTC())
	if err := s.store.PutGameStats(ctx, stats); err != nil {
		return GameStats{}, err
	}
	return stats, nil
}

// ComputeGameStats folds verified predictions into one aggregate, oldest
// first so the streak counters track chronology.
func ComputeGameStats(addr string, game Game, preds []Prediction) GameStats {
	ordered := make([]Prediction, len(preds))
	copy(ordered, preds)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreateDate < ordered[j].CreateDate
	})

	stats := GameStats{Owner: addr, Game: game}
	for _, pred := range ordered {
		if Status(pred, nil) != StatusVerifiedOK || pred.Correct == nil {
			continue
		}
		stats.Verified++
		switch *pred.Correct {
		case VerdictTrue:
			stats.Correct++
			stats.CurrentStreak++
			if stats.CurrentStreak > stats.MaxStreak {
				stats.MaxStreak = stats.CurrentStreak
			}
		case VerdictFalse:
			stats.Wrong++
			stats.CurrentStreak = 0
		default:
			stats.NotApplicable++
		}
	}
	return stats
}

// AccountStats sums the caller's per-game aggregates into one cross-game
// view.
func (s *Service) AccountStats(ctx context.Context, addr string) (GameStats, error) {
	addr = NormalizeAddr(addr)
	if addr == "" {
		return GameStats{}, apperrors.New(apperrors.CodeRequestInvalid, "address identity is required")
	}
	return s.accountStats(ctx, addr)
}

func (s *Service) accountStats(ctx context.Context, addr string) (GameStats, error) {
	total := GameStats{Owner: addr}
	for game := range supportedGames {
		stats, err := s.store.GetGameStats(ctx, addr, game)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return GameStats{}, err
		}
		total.Verified += stats.Verified
		total.Correct += stats.Correct
		total.Wrong += stats.Wrong
		total.NotApplicable += stats.NotApplicable
		if stats.CurrentStreak > total.CurrentStreak {
			total.CurrentStreak = stats.CurrentStreak
		}
		if stats.MaxStreak > total.MaxStreak {
			total.MaxStreak = stats.MaxStreak
		}
		if stats.UpdateDate > total.UpdateDate {
			total.UpdateDate = stats.UpdateDate
		}
	}
	return total, nil
}
