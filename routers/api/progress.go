package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ParableToVideo-server/models"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Progress is one snapshot pushed over the progress socket.
type Progress struct {
	ID           string          `json:"id"`
	Status       models.Status   `json:"status"`
	Stage        models.Stage    `json:"stage"`
	CurrentStep  int             `json:"current_step"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Failure      *models.Failure `json:"failure,omitempty"`
}

func progressOf(p *models.Parable) Progress {
	return Progress{
		ID:           p.ID,
		Status:       p.Status,
		Stage:        p.Stage,
		CurrentStep:  p.CurrentStep,
		ErrorMessage: p.ErrorMessage,
		Failure:      p.Failure,
	}
}

func running(s models.Status) bool {
	return s == models.StatusProcessing || s == models.StatusGeneratingFinal
}

// ProgressSocket pushes the unit's progress whenever it changes. The
// database is the source: the socket reads the row, pushes it, then polls
// until the unit stops running.
func (h *Handler) ProgressSocket(resolve Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolve(c, h.Store)
		if err != nil {
			RespondError(c, err)
			return
		}
		p, err := h.Store.GetParable(c.Request.Context(), id)
		if err != nil {
			RespondError(c, err)
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.Log.Warn("websocket upgrade failed", "parable_id", id, "error", err)
			return
		}
		defer conn.Close()

		// The reader notices a client going away between pushes.
		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		prev := progressOf(p)
		if err := conn.WriteJSON(prev); err != nil || !running(prev.Status) {
			h.closeSocket(conn)
			return
		}

		interval := h.PollInterval
		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cur, err := h.Store.GetParable(ctx, id)
			if err != nil {
				// deleted while watched
				h.Log.Debug("progress read failed", "parable_id", id, "error", err)
				h.closeSocket(conn)
				return
			}
			next := progressOf(cur)
			if next.Status != prev.Status || next.Stage != prev.Stage || next.CurrentStep != prev.CurrentStep {
				if err := conn.WriteJSON(next); err != nil {
					return
				}
				prev = next
			}
			if !running(next.Status) {
				h.closeSocket(conn)
				return
			}
		}
	}
}

func (h *Handler) closeSocket(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
