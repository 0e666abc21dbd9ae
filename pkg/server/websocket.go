package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/session"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// handleWebsocket streams the current snapshot and then every session update
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Sugar().Warnw("Failed to upgrade connection to websocket", "error", err)
		return
	}
	defer conn.Close()

	s.metrics.ConnectedClients.Inc()
	defer s.metrics.ConnectedClients.Dec()

	updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(r.Context())
	wg := &sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(conn)
	}()

	s.logger.Debug("Status stream client connected", zap.String("remote", r.RemoteAddr))
	s.writeLoop(ctx, conn, updates)
	cancel()
	_ = conn.Close()
	wg.Wait()
	s.logger.Debug("Status stream client disconnected", zap.String("remote", r.RemoteAddr))
}

// readLoop only services control frames; it returns when the peer goes away
func (s *Server) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, updates <-chan session.Update) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if err := s.writeUpdate(conn, session.Update{Snapshot: s.session.Snapshot()}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case update, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"), time.Now().Add(wsWriteWait))
				return
			}
			if err := s.writeUpdate(conn, update); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeUpdate(conn *websocket.Conn, update session.Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(update); err != nil {
		s.logger.Debug("Failed to write status update", zap.Error(err))
		return err
	}
	return nil
}
