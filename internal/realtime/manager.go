package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	appErrors "courier-sync/pkg/errors"
)

// Manager hands out a shared realtime connection with reference counting.
// The first Acquire dials; concurrent acquires during the dial wait for
// that same attempt instead of opening a second socket. The connection is
// torn down when the last holder releases it.
type Manager struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *Conn
	refs     int
	inflight chan struct{} // non-nil while a dial is in progress
	dialErr  error
}

func NewManager(url string, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{url: url, log: log}
}

// Acquire returns the shared connection, dialing it on first use. Every
// successful Acquire must be paired with a Release.
func (m *Manager) Acquire(ctx context.Context) (*Conn, error) {
	if m.url == "" {
		return nil, appErrors.NewAppError(
			appErrors.CodeTransportUnavailable,
			"realtime endpoint is not configured",
			appErrors.ErrTransportUnavailable,
		)
	}

	for {
		m.mu.Lock()
		if m.conn != nil {
			m.refs++
			conn := m.conn
			m.mu.Unlock()
			return conn, nil
		}

		if m.inflight != nil {
			// Another caller is dialing; wait for its result and retry.
			wait := m.inflight
			m.mu.Unlock()
			select {
			case <-wait:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			m.mu.Lock()
			if m.dialErr != nil {
				err := m.dialErr
				m.mu.Unlock()
				return nil, err
			}
			m.mu.Unlock()
			continue
		}

		done := make(chan struct{})
		m.inflight = done
		m.mu.Unlock()

		conn := newConn(m.url, m.log)
		err := conn.connect(ctx)

		m.mu.Lock()
		m.inflight = nil
		m.dialErr = err
		if err != nil {
			m.mu.Unlock()
			close(done)
			return nil, err
		}
		m.conn = conn
		m.refs = 1
		m.mu.Unlock()
		close(done)
		return conn, nil
	}
}

// Release drops one reference. The underlying socket closes when the
// count reaches zero; releasing with no holders is a no-op.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.refs == 0 {
		m.mu.Unlock()
		return
	}
	m.refs--
	var conn *Conn
	if m.refs == 0 {
		conn = m.conn
		m.conn = nil
	}
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Refs reports the current holder count.
func (m *Manager) Refs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refs
}
