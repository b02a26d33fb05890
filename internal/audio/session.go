// Package audio tracks voice note playback. At most one message plays at
// a time; starting another stops the current one first.
package audio

import (
	"sync"

	"go.uber.org/zap"
)

// Session is the single active playback slot.
type Session struct {
	mu      sync.Mutex
	current string
	stops   int
	logger  *zap.Logger
}

// NewSession creates an idle playback session.
func NewSession(logger *zap.Logger) *Session {
	return &Session{logger: logger}
}

// Play binds playback to a message, stopping any previous playback.
func (s *Session) Play(msgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != "" && s.current != msgID {
		s.logger.Debug("switching playback", zap.String("from", s.current), zap.String("to", msgID))
	}
	s.current = msgID
}

// Stop ends the current playback. Stopping an idle session is a no-op.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == "" {
		return
	}
	s.logger.Debug("playback stopped", zap.String("msg_id", s.current))
	s.current = ""
	s.stops++
}

// CurrentMessage returns the identity of the playing message, or "".
func (s *Session) CurrentMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Stops returns how many times playback has actually been stopped.
func (s *Session) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
