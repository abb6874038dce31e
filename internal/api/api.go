// Package api exposes the HTTP and WebSocket surface of the service.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"github.com/soundhaus/partyline/internal/app/engine"
	"github.com/soundhaus/partyline/internal/auth"
	"github.com/soundhaus/partyline/internal/infra/catalog"
	"github.com/soundhaus/partyline/internal/infra/partystore"
	"github.com/soundhaus/partyline/internal/telemetry"
)

// API wires the HTTP surface to the party store and session registry.
type API struct {
	store    *partystore.Store
	sessions *engine.Registry
	catalog  *catalog.Client // nil when no catalog is configured
	secret   []byte
	tokenTTL time.Duration
}

// New creates the API.
func New(store *partystore.Store, sessions *engine.Registry, cat *catalog.Client, secret []byte, tokenTTL time.Duration) *API {
	return &API{
		store:    store,
		sessions: sessions,
		catalog:  cat,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

// Router builds the chi router.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.handleHealth)
	r.Method("GET", "/metrics", telemetry.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/parties", a.handleCreateParty)
		r.Get("/parties", a.handleListParties)
		r.Post("/parties/{partyID}/join", a.handleJoin)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(a.secret))

			r.Route("/parties/{partyID}", func(r chi.Router) {
				r.Delete("/", a.handleCloseParty)
				r.Post("/leave", a.handleLeave)
				r.Get("/status", a.handleStatus)
				r.Get("/stream", a.handleStream)

				r.Post("/queue", a.handleEnqueue)
				r.Post("/queue/{trackID}/vote", a.handleVote)
				r.Delete("/queue/{trackID}/vote", a.handleRetractVote)

				r.Post("/playback/skip", a.handleSkip)
				r.Post("/playback/pause", a.handlePause)
				r.Post("/playback/resume", a.handleResume)
				r.Post("/playback/seek", a.handleSeek)

				r.Post("/chat", a.handleChat)
			})
		})
	})

	return r
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func partyID(r *http.Request) string {
	return chi.URLParam(r, "partyID")
}

// claimsFor returns the request's claims, enforcing that the token was
// issued for the party in the URL.
func claimsFor(r *http.Request) (*auth.Claims, error) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return nil, errors.New("missing claims")
	}
	if claims.PartyID != chi.URLParam(r, "partyID") {
		return nil, errors.New("token issued for another party")
	}
	return claims, nil
}

// session resolves the live session for the party in the URL.
func (a *API) session(r *http.Request) (*engine.Engine, error) {
	return a.sessions.Get(chi.URLParam(r, "partyID"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("failed to write response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, partystore.ErrPartyNotFound),
		errors.Is(err, engine.ErrSessionNotFound),
		errors.Is(err, catalog.ErrTrackNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrSessionClosed):
		status = http.StatusGone
	case errors.Is(err, engine.ErrNotHost),
		errors.Is(err, engine.ErrUnknownParticipant):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrInvalidTrack),
		errors.Is(err, engine.ErrUnknownTrack),
		errors.Is(err, engine.ErrFilterRejected),
		errors.Is(err, engine.ErrNoTrackPlaying),
		errors.Is(err, engine.ErrEmptyChatMessage),
		errors.Is(err, engine.ErrChatMessageTooLong):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errWrongPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, errPartyEnded):
		status = http.StatusGone
	}

	if status == http.StatusInternalServerError {
		zlog.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var (
	errBadRequest    = errors.New("bad request")
	errWrongPassword = errors.New("wrong password")
	errPartyEnded    = errors.New("party has ended")
)
