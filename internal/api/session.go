package api

import (
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"

	"github.com/soundhaus/partyline/internal/domain/track"
)

type enqueueRequest struct {
	// Either a full track document or a bare catalog ID.
	Track   *trackRequest `json:"track,omitempty"`
	TrackID string        `json:"track_id,omitempty"`
}

type trackRequest struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	CoverRef   string `json:"cover_ref,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

func (a *API) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFor(r)
	if err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	var req enqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}

	var t track.Track
	switch {
	case req.Track != nil:
		t = track.Track{
			ID:       req.Track.ID,
			Title:    req.Track.Title,
			Artist:   req.Track.Artist,
			CoverRef: req.Track.CoverRef,
			Duration: time.Duration(req.Track.DurationMs) * time.Millisecond,
		}
	case req.TrackID != "":
		if a.catalog == nil {
			writeError(w, errors.Wrap(errBadRequest, "no catalog configured, send a full track document"))
			return
		}
		t, err = a.catalog.Resolve(r.Context(), req.TrackID)
		if err != nil {
			writeError(w, err)
			return
		}
	default:
		writeError(w, errors.Wrap(errBadRequest, "track or track_id is required"))
		return
	}

	sess, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Enqueue(r.Context(), claims.ParticipantID, t); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (a *API) handleVote(w http.ResponseWriter, r *http.Request) {
	a.queueVoteOp(w, r, true)
}

func (a *API) handleRetractVote(w http.ResponseWriter, r *http.Request) {
	a.queueVoteOp(w, r, false)
}

func (a *API) queueVoteOp(w http.ResponseWriter, r *http.Request, cast bool) {
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

	trackID := chi.URLParam(r, "trackID")
	if cast {
		err = sess.Vote(r.Context(), claims.ParticipantID, trackID)
	} else {
		err = sess.RetractVote(r.Context(), claims.ParticipantID, trackID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLeave(w http.ResponseWriter, r *http.Request) {
	a.sessionOp(w, r, func(participantID string, r *http.Request) error {
		sess, err := a.session(r)
		if err != nil {
			return err
		}
		return sess.Leave(r.Context(), participantID)
	})
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	a.sessionOp(w, r, func(participantID string, r *http.Request) error {
		sess, err := a.session(r)
		if err != nil {
			return err
		}
		return sess.Skip(r.Context(), participantID)
	})
}

func (a *API) handlePause(w http.ResponseWriter, r *http.Request) {
	a.sessionOp(w, r, func(participantID string, r *http.Request) error {
		sess, err := a.session(r)
		if err != nil {
			return err
		}
		return sess.Pause(r.Context(), participantID)
	})
}

func (a *API) handleResume(w http.ResponseWriter, r *http.Request) {
	a.sessionOp(w, r, func(participantID string, r *http.Request) error {
		sess, err := a.session(r)
		if err != nil {
			return err
		}
		return sess.Resume(r.Context(), participantID)
	})
}

type seekRequest struct {
	PositionMs int64 `json:"position_ms"`
}

func (a *API) handleSeek(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFor(r)
	if err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	var req seekRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	sess, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Seek(r.Context(), claims.ParticipantID, time.Duration(req.PositionMs)*time.Millisecond); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type chatRequest struct {
	Text string `json:"text"`
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFor(r)
	if err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	sess, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Chat(r.Context(), claims.ParticipantID, req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := claimsFor(r); err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	sess, err := a.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := sess.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) sessionOp(w http.ResponseWriter, r *http.Request, op func(participantID string, r *http.Request) error) {
	claims, err := claimsFor(r)
	if err != nil {
		writeError(w, errors.Wrap(errBadRequest, err.Error()))
		return
	}
	if err := op(claims.ParticipantID, r); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
