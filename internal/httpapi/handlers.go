package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/engine"
	"github.com/umutsatir/brainstorming-application/internal/hub"
	"github.com/umutsatir/brainstorming-application/internal/identity"
	"github.com/umutsatir/brainstorming-application/internal/orchestrator"
)

const healthCheckTimeout = 2 * time.Second

type Deps struct {
	Orchestrator   *orchestrator.Orchestrator
	Hub            *hub.Hub
	Identity       *identity.Resolver
	Metrics        http.Handler // nil disables /metrics
	Logger         *zap.Logger
	OriginPatterns []string
}

// StatusOf maps a domain error to its HTTP status.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidSubmission):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrUnauthorized), errors.Is(err, engine.ErrNotAParticipant):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := StatusOf(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func roundParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Authenticate rejects requests without a resolvable user.
func Authenticate(res *identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := res.UserID(r)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), userID)))
		})
	}
}

func sessionCaller(ctx context.Context, d Deps, sessionID string) (engine.Caller, error) {
	userID, ok := identity.UserFrom(ctx)
	if !ok {
		return engine.Caller{}, identity.ErrUnauthenticated
	}
	return d.Identity.ForSession(ctx, sessionID, userID)
}

// sessionHandler resolves the caller for {id} before running fn.
func sessionHandler(d Deps, fn func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")
		caller, err := sessionCaller(r.Context(), d, sessionID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		fn(w, r, caller, sessionID)
	}
}

type createSessionBody struct {
	TeamID               string `json:"teamId"`
	Topic                string `json:"topic"`
	RoundCount           int    `json:"roundCount,omitempty"`
	RoundDurationSeconds int    `json:"roundDurationSeconds,omitempty"`
}

func CreateSession(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createSessionBody
		if err := decode(r, &body); err != nil {
			badRequest(w, "invalid body")
			return
		}
		if body.TeamID == "" {
			badRequest(w, "teamId is required")
			return
		}
		userID, _ := identity.UserFrom(r.Context())
		caller, err := d.Identity.ForTeam(r.Context(), body.TeamID, userID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		sess, err := d.Orchestrator.CreateSession(r.Context(), caller, orchestrator.CreateSessionRequest{
			TeamID:        body.TeamID,
			Topic:         body.Topic,
			RoundCount:    body.RoundCount,
			RoundDuration: time.Duration(body.RoundDurationSeconds) * time.Second,
		})
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, orchestrator.ViewOfSession(sess))
	}
}

func GetSessionState(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		state, err := d.Orchestrator.SessionState(r.Context(), caller, sessionID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, state)
	})
}

// ControlAction serves the fixed-action routes such as /start.
func ControlAction(d Deps, action string) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		control(w, r, d, caller, sessionID, action)
	})
}

func Control(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		var body struct {
			Action string `json:"action"`
		}
		if err := decode(r, &body); err != nil {
			badRequest(w, "invalid body")
			return
		}
		control(w, r, d, caller, sessionID, body.Action)
	})
}

func control(w http.ResponseWriter, r *http.Request, d Deps, caller engine.Caller, sessionID, action string) {
	sess, err := d.Orchestrator.Control(r.Context(), caller, sessionID, action)
	if err != nil {
		writeError(w, d.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orchestrator.ViewOfSession(sess))
}

func AdvanceRound(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		n, ok := roundParam(r)
		if !ok {
			badRequest(w, "invalid round number")
			return
		}
		res, err := d.Orchestrator.AdvanceRound(r.Context(), caller, sessionID, n)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
}

func GetRoundDetail(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		n, ok := roundParam(r)
		if !ok {
			badRequest(w, "invalid round number")
			return
		}
		detail, err := d.Orchestrator.RoundDetail(r.Context(), caller, sessionID, n)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	})
}

func GetRoundIdeas(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		n, ok := roundParam(r)
		if !ok {
			badRequest(w, "invalid round number")
			return
		}
		ideas, err := d.Orchestrator.RoundIdeas(r.Context(), caller, sessionID, n)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, ideas)
	})
}

func SubmitIdeas(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		n, ok := roundParam(r)
		if !ok {
			badRequest(w, "invalid round number")
			return
		}
		var body struct {
			Ideas []string `json:"ideas"`
		}
		if err := decode(r, &body); err != nil {
			badRequest(w, "invalid body")
			return
		}
		res, err := d.Orchestrator.SubmitIdeas(r.Context(), caller, sessionID, n, body.Ideas)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	})
}

func WithdrawIdeas(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		n, ok := roundParam(r)
		if !ok {
			badRequest(w, "invalid round number")
			return
		}
		removed, err := d.Orchestrator.WithdrawIdeas(r.Context(), caller, sessionID, n)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"withdrawn": removed})
	})
}

func EditIdea(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ideaID := chi.URLParam(r, "ideaId")
		var body struct {
			Text string `json:"text"`
		}
		if err := decode(r, &body); err != nil {
			badRequest(w, "invalid body")
			return
		}
		sessionID, err := d.Orchestrator.IdeaSession(r.Context(), ideaID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		caller, err := sessionCaller(r.Context(), d, sessionID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		idea, err := d.Orchestrator.EditIdea(r.Context(), caller, ideaID, body.Text)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, idea)
	}
}

func SessionIdeas(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		rounds, err := d.Orchestrator.SessionIdeas(r.Context(), caller, sessionID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, rounds)
	})
}

func SessionLogs(d Deps) http.HandlerFunc {
	return sessionHandler(d, func(w http.ResponseWriter, r *http.Request, caller engine.Caller, sessionID string) {
		logs, err := d.Orchestrator.SessionLogs(r.Context(), caller, sessionID)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	})
}

// Healthz reports the hub as down once it has shut down.
func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		stats, err := h.Stats(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "down", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"topics":      stats.Topics,
			"subscribers": stats.Subscribers,
		})
	}
}
