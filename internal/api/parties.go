package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/soundhaus/partyline/internal/auth"
	"github.com/soundhaus/partyline/internal/domain/party"
)

type createPartyRequest struct {
	Name        string `json:"name"`
	Genre       string `json:"genre"`
	Privacy     string `json:"privacy"`
	Password    string `json:"password,omitempty"`
	Description string `json:"description,omitempty"`
	CoverRef    string `json:"cover_ref,omitempty"`
}

type partyResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Genre       string    `json:"genre"`
	Privacy     string    `json:"privacy"`
	Description string    `json:"description,omitempty"`
	CoverRef    string    `json:"cover_ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toPartyResponse(p *party.Party) partyResponse {
	return partyResponse{
		ID:          p.ID,
		Name:        p.Name,
		Genre:       string(p.Genre),
		Privacy:     string(p.Privacy),
		Description: p.Description,
		CoverRef:    p.CoverRef,
		CreatedAt:   p.CreatedAt,
	}
}

func (a *API) handleCreateParty(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, errors.Wrap(errBadRequest, "party name is required"))
		return
	}
	genre := party.Genre(req.Genre)
	if !genre.Valid() {
		writeError(w, errors.Wrapf(errBadRequest, "unknown genre %q", req.Genre))
		return
	}
	privacy := party.Privacy(req.Privacy)
	if req.Privacy == "" {
		privacy = party.PrivacyPublic
	}
	if !privacy.Valid() {
		writeError(w, errors.Wrapf(errBadRequest, "unknown privacy %q", req.Privacy))
		return
	}

	p := &party.Party{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Genre:       genre,
		Privacy:     privacy,
		Description: strings.TrimSpace(req.Description),
		CoverRef:    req.CoverRef,
	}

	if privacy == party.PrivacyPrivate {
		if req.Password == "" {
			writeError(w, errors.Wrap(errBadRequest, "private party requires a password"))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			writeError(w, errors.Wrap(err, "failed to hash password"))
			return
		}
		p.PasswordHash = string(hash)
	}

	if err := a.store.Create(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}

	zlog.Info().Str("party_id", p.ID).Str("name", p.Name).Str("genre", string(p.Genre)).Msg("party created")
	writeJSON(w, http.StatusCreated, toPartyResponse(p))
}

func (a *API) handleListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := a.store.ListActive(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]partyResponse, 0, len(parties))
	for i := range parties {
		// private parties are joinable by password, not discoverable
		if parties[i].Privacy == party.PrivacyPublic {
			out = append(out, toPartyResponse(&parties[i]))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"parties": out})
}

type joinRequest struct {
	DisplayName string `json:"display_name"`
	Password    string `json:"password,omitempty"`
}

type joinResponse struct {
	Token         string `json:"token"`
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
	PartyID       string `json:"party_id"`
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		writeError(w, errors.Wrap(errBadRequest, "display name is required"))
		return
	}

	p, err := a.store.Get(r.Context(), partyID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !p.Active {
		writeError(w, errPartyEnded)
		return
	}
	if p.Privacy == party.PrivacyPrivate {
		if bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(req.Password)) != nil {
			writeError(w, errWrongPassword)
			return
		}
	}

	sess := a.sessions.Open(*p)
	participantID := uuid.NewString()
	joined, err := sess.Join(r.Context(), participantID, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.Issue(a.secret, auth.Claims{
		ParticipantID: joined.ID,
		PartyID:       p.ID,
		DisplayName:   joined.DisplayName,
	}, a.tokenTTL)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to issue token"))
		return
	}

	writeJSON(w, http.StatusOK, joinResponse{
		Token:         token,
		ParticipantID: joined.ID,
		Role:          string(joined.Role),
		PartyID:       p.ID,
	})
}

func (a *API) handleCloseParty(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFor(r)
	if err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	sess, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.CloseByHost(r.Context(), claims.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	if err := a.store.Deactivate(r.Context(), claims.PartyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}
