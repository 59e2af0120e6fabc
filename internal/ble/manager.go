package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy bounds connect retries. The zero value retries immediately
// and forever: a heart-rate strap that is out of range or still advertising
// will eventually accept the connection.
type RetryPolicy struct {
	Delay       time.Duration // pause between attempts
	MaxAttempts int           // 0 means no limit
}

// ManagerOptions configures the connection manager.
type ManagerOptions struct {
	Retry      RetryPolicy
	BufferSize int // notification buffer per session
}

// DefaultManagerOptions returns the production defaults.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{BufferSize: 16}
}

// Manager owns the connection to a single heart-rate peripheral.
type Manager struct {
	adapter  Adapter
	selector *Selector
	opts     ManagerOptions
}

// NewManager creates a Manager that finds peripherals through selector.
func NewManager(adapter Adapter, selector *Selector, opts ManagerOptions) *Manager {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 16
	}
	return &Manager{
		adapter:  adapter,
		selector: selector,
		opts:     opts,
	}
}

// Connect selects a peripheral, connects to it and subscribes to heart-rate
// notifications. Connection failures are retried according to the retry
// policy; a peripheral without the heart-rate or battery characteristic
// yields ErrMissingCharacteristic.
func (m *Manager) Connect(ctx context.Context, target Target) (*Session, error) {
	p, err := m.selector.Select(ctx, target)
	if err != nil {
		return nil, err
	}

	slog.Info("[BLE] connecting", "name", p.Label(), "address", p.Address)

	for attempt := 1; ; attempt++ {
		session, err := m.attempt(ctx, p)
		if err == nil {
			return session, nil
		}
		if errors.Is(err, ErrMissingCharacteristic) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		slog.Warn("[BLE] failed to connect", "name", p.Label(), "error", err, "attempt", attempt)

		if m.opts.Retry.MaxAttempts > 0 && attempt >= m.opts.Retry.MaxAttempts {
			return nil, fmt.Errorf("ble: giving up on %s after %d attempts: %w", p.Address, attempt, err)
		}
		if err := sleepCtx(ctx, m.opts.Retry.Delay); err != nil {
			return nil, err
		}
	}
}

// Reconnect closes prev and connects again to the same address without
// involving the operator.
func (m *Manager) Reconnect(ctx context.Context, prev *Session) (*Session, error) {
	if err := prev.Close(); err != nil {
		slog.Debug("[BLE] disconnect before reconnect failed", "session", prev.ID, "error", err)
	}
	slog.Info("[BLE] reconnecting", "name", prev.Name, "address", prev.Address)
	return m.Connect(ctx, Target{Address: prev.Address})
}

// attempt runs one connect, discover, read, subscribe sequence.
func (m *Manager) attempt(ctx context.Context, p Peripheral) (*Session, error) {
	conn, err := m.adapter.Connect(ctx, p.Address)
	if err != nil {
		return nil, err
	}
	slog.Info("[BLE] connected", "name", p.Label(), "address", p.Address)

	session, err := m.subscribe(conn, p)
	if err != nil {
		_ = conn.Disconnect()
		return nil, err
	}
	return session, nil
}

func (m *Manager) subscribe(conn Connection, p Peripheral) (*Session, error) {
	batteryChar, err := conn.DiscoverCharacteristic(BatteryServiceUUID, BatteryLevelUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover battery level characteristic: %w", err)
	}
	hrChar, err := conn.DiscoverCharacteristic(HeartRateServiceUUID, HeartRateMeasurementUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: discover heart rate characteristic: %w", err)
	}

	session := newSession(conn, p, m.opts.BufferSize)

	if data, err := batteryChar.Read(); err != nil || len(data) == 0 {
		slog.Warn("[BLE] failed to read battery level", "name", session.Name, "error", err)
	} else {
		session.Battery = int(data[0])
		slog.Info("[BLE] battery level", "name", session.Name, "percent", session.Battery)
	}

	conn.OnDisconnect(func() {
		slog.Warn("[BLE] disconnected", "name", session.Name, "session", session.ID)
		session.end()
	})

	if err := hrChar.Subscribe(session.deliver); err != nil {
		session.end()
		return nil, fmt.Errorf("ble: subscribe to heart rate: %w", err)
	}
	slog.Info("[BLE] subscribed to heart rate characteristic", "name", session.Name, "session", session.ID)

	return session, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
