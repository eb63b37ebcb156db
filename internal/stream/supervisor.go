// Package stream owns the websocket connections to the upstream exchange:
// one supervisor per stream kind, each keeping its connection alive with a
// fixed-delay reconnect loop and forwarding parsed frames as typed messages.
package stream

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Supervisor owns one websocket connection for as long as its context lives.
// Connection failures are never surfaced to the caller: the supervisor waits
// a fixed delay and redials. Stop is cooperative via context cancellation.
type Supervisor struct {
	name       string
	url        string
	handle     Handler
	onStatus   func(text string) // optional lifecycle callback
	retryDelay time.Duration
	log        *zap.Logger
}

func NewSupervisor(name, url string, handle Handler, onStatus func(string), retryDelay time.Duration, log *zap.Logger) *Supervisor {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Supervisor{
		name:       name,
		url:        url,
		handle:     handle,
		onStatus:   onStatus,
		retryDelay: retryDelay,
		log:        log.With(zap.String("stream", name)),
	}
}

// Run dials, reads, and redials until ctx is cancelled. It never returns an
// error; transport failures are logged and retried.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("dial failed, retrying", zap.String("url", s.url), zap.Error(err))
			s.status("reconnecting")
			if !s.sleep(ctx) {
				return
			}
			continue
		}

		s.log.Info("stream connected", zap.String("url", s.url))
		s.status("connected")
		s.readLoop(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		s.status("reconnecting")
		if !s.sleep(ctx) {
			return
		}
	}
}

// readLoop reads frames until the connection errors or ctx is cancelled.
// Cancellation closes the connection to unblock the pending read.
func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.log.Warn("read error", zap.Error(err))
			}
			return
		}
		s.handle(msg)
	}
}

func (s *Supervisor) status(text string) {
	if s.onStatus != nil {
		s.onStatus(text)
	}
}

// sleep waits out the retry delay; it returns false when ctx was cancelled.
func (s *Supervisor) sleep(ctx context.Context) bool {
	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
