package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	ws "nhooyr.io/websocket"

	"github.com/soundhaus/partyline/internal/domain/delta"
)

const streamPingInterval = 15 * time.Second

// handleStream upgrades to a WebSocket and streams session deltas.
// The client passes its last applied version as ?since=N; the stream
// opens with the missed deltas or a full snapshot. A closed stream
// means the client fell behind and must reconnect to resync.
func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
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

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid since parameter", http.StatusBadRequest)
			return
		}
	}

	sub, err := sess.Subscribe(r.Context(), since)
	if err != nil {
		writeError(w, err)
		return
	}
	defer sess.Unsubscribe(sub.ID)

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		zlog.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	ctx := r.Context()
	// Reads are discarded; the stream is server-to-client only. This
	// also surfaces client disconnects through ctx.
	ctx = conn.CloseRead(ctx)

	zlog.Debug().Str("party_id", claims.PartyID).Str("participant_id", claims.ParticipantID).
		Uint64("since", since).Msg("delta stream attached")

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "bye")
			return
		case <-ticker.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		case d, ok := <-sub.C:
			if !ok {
				// dropped by the hub or session ended
				conn.Close(ws.StatusGoingAway, "resync required")
				return
			}
			if err := writeDelta(ctx, conn, d); err != nil {
				zlog.Debug().Err(err).Str("participant_id", claims.ParticipantID).Msg("delta stream write failed")
				return
			}
		}
	}
}

func writeDelta(ctx context.Context, conn *ws.Conn, d delta.Delta) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, payload)
}
