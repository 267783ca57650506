package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 120 * time.Second
	maxFrameSize = 1 << 20
)

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ns := core.Namespace{
		UserID:   strings.TrimSpace(r.URL.Query().Get("user_id")),
		ThreadID: strings.TrimSpace(r.URL.Query().Get("thread_id")),
	}
	if ns.ThreadID == "" {
		ns.ThreadID = DefaultThreadID
	}
	if !ns.Valid() {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	logger := s.logger.With(zap.String("user_id", ns.UserID), zap.String("thread_id", ns.ThreadID))
	s.metrics.connected(1)
	defer s.metrics.connected(-1)
	logger.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	mgr := s.managers(ctx, ns)

	inbound := make(chan string, 16)
	outbound := make(chan ServerFrame, 256)
	send := func(f ServerFrame) {
		select {
		case outbound <- f:
		case <-ctx.Done():
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	// Single writer: gorilla connections allow one concurrent writer.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case f := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(f); err != nil {
					cancel()
					return err
				}
				s.metrics.message("outbound", f.Type)
			}
		}
	})

	// Turns run one at a time in arrival order.
	g.Go(func() error {
		for content := range inbound {
			s.runTurn(gctx, mgr, content, send)
		}
		return nil
	})

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var frame ClientFrame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != TypeMessage || strings.TrimSpace(frame.Content) == "" {
			s.metrics.message("inbound", "invalid")
			send(ServerFrame{Type: TypeError, Error: "expected {\"type\":\"message\",\"content\":\"...\"}"})
			continue
		}
		s.metrics.message("inbound", frame.Type)

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- frame.Content:
		}
	}

	close(inbound)
	cancel()
	if err := g.Wait(); err != nil {
		logger.Debug("websocket writer stopped", zap.Error(err))
	}
	logger.Info("websocket disconnected")
}

func (s *Server) runTurn(ctx context.Context, mgr memory.Manager, content string, send func(ServerFrame)) {
	out, err := s.engine.Run(ctx, mgr, engine.Input{
		UserMessage: content,
		Progress: func(step, status, detail string) {
			send(ServerFrame{Type: TypeProgress, Step: step, Status: status, Detail: detail})
		},
		OnDelta: func(chunk string) {
			send(ServerFrame{Type: TypeDelta, Content: chunk})
		},
	})
	if err != nil {
		s.logger.Warn("turn failed", zap.Error(err))
		send(ServerFrame{Type: TypeError, Error: "I encountered an error processing your request. Please try again."})
		return
	}
	send(ServerFrame{
		Type:      TypeResponse,
		Content:   out.Response,
		Summary:   out.Context.Summary,
		Persisted: out.Persisted,
	})
}
