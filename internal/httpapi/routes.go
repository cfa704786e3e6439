package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/umutsatir/brainstorming-application/internal/ws"
)

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthz", Healthz(d.Hub))
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}
	// the websocket authenticates itself; browsers pass the token in the query
	r.Get("/ws/sessions/{id}", ws.Handler(ws.Deps{
		Orchestrator:   d.Orchestrator,
		Hub:            d.Hub,
		Identity:       d.Identity,
		Logger:         d.Logger,
		OriginPatterns: d.OriginPatterns,
	}))

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(d.Identity))

		r.Post("/sessions", CreateSession(d))
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", GetSessionState(d))
			r.Post("/start", ControlAction(d, "start"))
			r.Post("/pause", ControlAction(d, "pause"))
			r.Post("/resume", ControlAction(d, "resume"))
			r.Post("/complete", ControlAction(d, "complete"))
			r.Post("/control", Control(d))
			r.Get("/ideas", SessionIdeas(d))
			r.Get("/logs", SessionLogs(d))

			r.Get("/rounds/{n}", GetRoundDetail(d))
			r.Post("/rounds/{n}/advance", AdvanceRound(d))
			r.Get("/rounds/{n}/ideas", GetRoundIdeas(d))
			r.Post("/rounds/{n}/ideas", SubmitIdeas(d))
			r.Delete("/rounds/{n}/ideas", WithdrawIdeas(d))
		})
		r.Patch("/ideas/{ideaId}", EditIdea(d))
	})
	return r
}
