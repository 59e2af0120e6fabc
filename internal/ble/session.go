package ble

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Session is the live state of one successful connect+subscribe cycle.
// A Session is never reused: reconnecting produces a new one.
type Session struct {
	ID      uuid.UUID
	Address string
	Name    string
	Battery int // percent; -1 when the read failed

	// Notifications carries raw heart-rate measurement payloads. It is
	// closed when the peripheral disconnects or the session is closed.
	Notifications <-chan []byte

	conn      Connection
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
	notify chan []byte
}

func newSession(conn Connection, p Peripheral, bufferSize int) *Session {
	notify := make(chan []byte, bufferSize)
	return &Session{
		ID:            uuid.New(),
		Address:       p.Address,
		Name:          p.Label(),
		Battery:       -1,
		Notifications: notify,
		conn:          conn,
		notify:        notify,
	}
}

// deliver queues a notification payload. Payloads arriving after the
// session ended are dropped, as are payloads that do not fit the buffer.
func (s *Session) deliver(data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.notify <- cp:
	default:
		slog.Debug("[BLE] notification buffer full, dropping", "session", s.ID)
	}
}

// end closes the notification channel once. Sessions built outside this
// package own their channel, which is left alone.
func (s *Session) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.notify != nil {
		close(s.notify)
	}
}

// Close stops notifications and disconnects from the peripheral.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.end()
		if s.conn != nil {
			err = s.conn.Disconnect()
		}
	})
	return err
}
