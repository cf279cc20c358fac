package api

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	defaultPingInterval = 20 * time.Second
	maxPingTimeout      = 5 * time.Second
	// maxMissedPings consecutive failures mark the peer dead.
	maxMissedPings = 3
)

type pinger interface {
	Ping(ctx context.Context) error
}

// keepAlive pings the peer every interval until ctx ends. After
// maxMissedPings failures in a row it calls dead once and stops.
func (s *Server) keepAlive(ctx context.Context, conn pinger, sessionID string, dead func()) {
	if conn == nil {
		return
	}
	interval := s.pingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	timeout := min(interval, maxPingTimeout)

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		missed := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, timeout)
				err := conn.Ping(pingCtx)
				cancel()
				if err == nil {
					missed = 0
					continue
				}
				if ctx.Err() != nil {
					return
				}
				missed++
				s.logger.Debug("websocket ping failed",
					zap.String("session_id", sessionID),
					zap.Int("missed", missed),
					zap.Error(err))
				if missed >= maxMissedPings {
					s.logger.Info("websocket peer unresponsive, closing", zap.String("session_id", sessionID))
					dead()
					return
				}
			}
		}
	}()
}
