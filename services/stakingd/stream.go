package stakingd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
)

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal unavailable")
		return
	}
	after, err := parseCursor(r.URL.Query().Get("after"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	backlog, updates, cancel, err := s.journal.Subscribe(r.Context(), after)
	if err != nil {
		if errors.Is(err, ErrBacklogTooLarge) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "subscribe failed")
		return
	}
	defer cancel()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.originPatterns})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Clients only read; CloseRead handles control frames and cancels ctx on
	// disconnect.
	ctx := conn.CloseRead(r.Context())
	if err := streamEntries(ctx, conn, backlog, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEntries(ctx context.Context, conn *websocket.Conn, backlog []JournalEntry, updates <-chan JournalEntry) error {
	for _, entry := range backlog {
		if err := writeEntry(ctx, conn, entry); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-updates:
			if !ok {
				return errSubscriberDropped
			}
			if err := writeEntry(ctx, conn, entry); err != nil {
				return err
			}
		}
	}
}

var errSubscriberDropped = errors.New("stream subscriber dropped")

func writeEntry(ctx context.Context, conn *websocket.Conn, entry JournalEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func parseCursor(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	after, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || after < 0 {
		return 0, errors.New("after must be a non-negative sequence number")
	}
	return after, nil
}
