package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/pantry/internal/kitchen/board"
	"go.uber.org/zap"
)

const streamHeartbeat = 15 * time.Second

// StreamKitchenOrders pushes the active kitchen board as server-sent events:
// the current board first, then every change.
func (s *Server) StreamKitchenOrders(c *gin.Context) {
	if s.board == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	subscription, latest, err := s.board.Subscribe()
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer subscription.Close()

	if latest == nil {
		orders, err := s.kitchenSvc.ListOrders(c.Request.Context())
		if err != nil {
			AbortWithError(c, err)
			return
		}
		snapshot := board.SnapshotOf(orders)
		latest = &snapshot
	}

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, "retry: 2000\n\n"); err != nil {
		return
	}
	if err := writeBoardSnapshot(writer, *latest); err != nil {
		return
	}
	flusher.Flush()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-subscription.Events():
			if err := writeBoardSnapshot(writer, snapshot); err != nil {
				s.log.Debug("board stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeBoardSnapshot(w io.Writer, snapshot board.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
