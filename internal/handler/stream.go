package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const streamWriteTimeout = 5 * time.Second

// handleRunStream pushes a RunState JSON message on every run transition
// until the client goes away.
func (h *Handler) handleRunStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()

	// The client never sends; CloseRead handles control frames and cancels ctx on close.
	ctx := conn.CloseRead(r.Context())

	updates, unsubscribe := h.runner.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, st)
			cancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("run stream write", "error", err)
				}
				return
			}
		}
	}
}
