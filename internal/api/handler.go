// Package api exposes the prediction server's JSON endpoints.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/louisbranch/augurrank/internal/auth"
	"github.com/louisbranch/augurrank/internal/platform/id"
	"github.com/louisbranch/augurrank/internal/predictions/domain"
	"github.com/louisbranch/augurrank/internal/tasks"

	apperrors "github.com/louisbranch/augurrank/internal/platform/errors"
)

const maxBodyBytes = 1 << 20

// gameAll selects every game in range queries, matching the original wire
// value.
const gameAll domain.Game = "me"

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Handler serves the prediction server's HTTP surface.
type Handler struct {
	svc      *domain.Service
	verifier *auth.Verifier
	tokens   *tasks.TokenVerifier
}

// NewHandler constructs the HTTP handler set. tokens may be nil; the task
// endpoint then rejects every call.
func NewHandler(svc *domain.Service, verifier *auth.Verifier, tokens *tasks.TokenVerifier) *Handler {
	return &Handler{svc: svc, verifier: verifier, tokens: tokens}
}

// Routes registers all endpoints and returns the root handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleRoot)
	mux.HandleFunc("/add-newsletter-email", h.handleAddNewsletterEmail)
	mux.HandleFunc("/game", h.handleGame)
	mux.HandleFunc("/me", h.handleMe)
	mux.HandleFunc("/preds", h.handlePreds)
	mux.HandleFunc("/pred", h.handlePred)
	mux.HandleFunc("/task/update-stats", h.handleUpdateStats)
	return withCORS(withRequestLog(mux))
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<p>AugurRank API</p>")
}

func (h *Handler) handleAddNewsletterEmail(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	email := strings.TrimSpace(req.Email)
	if !emailPattern.MatchString(email) {
		writeError(w, apperrors.New(apperrors.CodeRequestInvalid, "email is malformed"))
		return
	}
	if err := h.svc.AddNewsletterEmail(r.Context(), email); err != nil {
		writeError(w, err)
		return
	}
	writeValid(w, nil)
}

func (h *Handler) handleGame(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		signedRequest
		Game domain.Game `json:"game"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := h.verifier.Verify(req.proof())
	if err != nil {
		writeError(w, err)
		return
	}

	overview, err := h.svc.GameState(r.Context(), addr, req.Game)
	if err != nil {
		writeError(w, err)
		return
	}

	fields := map[string]any{
		"userFound":     overview.UserFound,
		"didAgreeTerms": overview.DidAgreeTerms,
		"isVerified":    overview.IsVerified,
	}
	if overview.Pred != nil {
		fields["pred"] = predToJSON(*overview.Pred)
	}
	if overview.Stats != nil {
		fields["stats"] = statsToJSON(*overview.Stats)
	}
	writeValid(w, fields)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		signedRequest
		NowDate int64 `json:"nowDate"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := h.verifier.Verify(req.proof())
	if err != nil {
		writeError(w, err)
		return
	}

	overview, err := h.svc.AccountState(r.Context(), addr, req.NowDate)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValid(w, map[string]any{
		"userFound": overview.UserFound,
		"stats":     statsToJSON(overview.Stats),
		"preds":     predsToJSON(overview.Preds),
		"hasMore":   overview.HasMore,
	})
}

func (h *Handler) handlePreds(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		signedRequest
		IDs          []string             `json:"ids"`
		Game         domain.Game          `json:"game"`
		CreateDate   int64                `json:"createDate"`
		Operator     domain.QueryOperator `json:"operator"`
		ExcludingIDs []string             `json:"excludingIds"`
		FetchStats   bool                 `json:"fthMeStsIfVrfd"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := h.verifier.Verify(req.proof())
	if err != nil {
		writeError(w, err)
		return
	}
	// "me" is the all-games selector on the wire.
	if req.Game == gameAll {
		req.Game = ""
	}

	var preds []domain.Prediction
	hasMore := false
	if len(req.IDs) > 0 {
		preds, err = h.svc.PredsByIDs(r.Context(), addr, req.IDs)
	} else {
		var page domain.PredictionPage
		page, err = h.svc.QueryPreds(r.Context(), addr, req.Game, req.CreateDate, req.Operator, req.ExcludingIDs)
		preds, hasMore = page.Predictions, page.HasMore
	}
	if err != nil {
		writeError(w, err)
		return
	}

	fields := map[string]any{
		"preds":   predsToJSON(preds),
		"hasMore": hasMore,
	}
	if req.FetchStats {
		if stats, ok := h.refreshedStats(r, addr, preds); ok {
			fields["stats"] = stats
		}
	}
	writeValid(w, fields)
}

// refreshedStats recomputes stats for the games carrying a verified-ok
// prediction in the page and returns the cross-game aggregate, so a caller
// polling verification results sees fresh totals in the same round trip.
func (h *Handler) refreshedStats(r *http.Request, addr string, preds []domain.Prediction) (statsJSON, bool) {
	games := map[domain.Game]struct{}{}
	for _, pred := range preds {
		if domain.Status(pred, nil) == domain.StatusVerifiedOK {
			games[pred.Game] = struct{}{}
		}
	}
	if len(games) == 0 {
		return statsJSON{}, false
	}

	for game := range games {
		if _, err := h.svc.RefreshGameStats(r.Context(), addr, game); err != nil {
			log.Printf("refresh stats for %s/%s: %v", addr, game, err)
		}
	}
	total, err := h.svc.AccountStats(r.Context(), addr)
	if err != nil {
		log.Printf("aggregate stats for %s: %v", addr, err)
		return statsJSON{}, false
	}
	return statsToJSON(total), true
}

func (h *Handler) handlePred(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req struct {
		signedRequest
		Pred predJSON `json:"pred"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	addr, err := h.verifier.Verify(req.proof())
	if err != nil {
		writeError(w, err)
		return
	}

	view := req.Pred.toDomain()
	result, err := h.svc.Upsert(r.Context(), addr, &view)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValid(w, map[string]any{
		"pred":      predToJSON(result.Prediction),
		"oldStatus": result.OldStatus,
		"newStatus": result.NewStatus,
	})
}

func (h *Handler) handleUpdateStats(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if h.tokens == nil {
		writeError(w, apperrors.New(apperrors.CodeTaskTokenInvalid, "task endpoint is not configured"))
		return
	}
	if err := h.tokens.Verify(token); err != nil {
		writeError(w, err)
		return
	}

	var event domain.TransitionEvent
	if err := decodeBody(r, &event); err != nil {
		writeError(w, err)
		return
	}
	owner := event.NewPrediction.Owner
	game := event.NewPrediction.Game
	if owner == "" || game == "" {
		writeError(w, apperrors.New(apperrors.CodeRequestInvalid, "payload must carry owner and game"))
		return
	}

	stats, err := h.svc.RefreshGameStats(r.Context(), owner, game)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValid(w, map[string]any{"stats": statsToJSON(stats)})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodPost {
		return true
	}
	w.Header().Set("Allow", http.MethodPost)
	writeStatus(w, http.StatusMethodNotAllowed, map[string]any{
		"status": "ERROR",
		"error":  "method not allowed",
	})
	return false
}

func decodeBody(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeRequestMalformed, "request body is not valid JSON", err)
	}
	return nil
}

func writeValid(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": "VALID"}
	for key, value := range fields {
		body[key] = value
	}
	writeStatus(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	writeStatus(w, code.HTTPStatus(), map[string]any{
		"status": "ERROR",
		"error":  message,
		"code":   string(code),
	})
}

func writeStatus(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// withCORS allows browser callers from any origin; the endpoints are
// authenticated by signed proofs, not cookies.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := id.NewID()
		if err != nil {
			key = "unknown"
		} else {
			key = key[:8]
		}
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		log.Printf("%s %s %s %d referer=%q", key, r.Method, r.URL.Path, recorder.status, r.Referer())
	})
}
