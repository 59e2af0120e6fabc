package ble

import (
	"context"
	"errors"
	"testing"
	"time"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

func newTestManager(adapter *mockAdapter, opts ManagerOptions) *Manager {
	return NewManager(adapter, newTestSelector(adapter, nil), opts)
}

func connectTestSession(t *testing.T, adapter *mockAdapter) (*Manager, *Session) {
	t.Helper()
	fastPolling(t)
	m := newTestManager(adapter, DefaultManagerOptions())
	session, err := m.Connect(context.Background(), Target{Address: testAddress})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return m, session
}

func recvNotification(t *testing.T, s *Session) []byte {
	t.Helper()
	select {
	case data, ok := <-s.Notifications:
		if !ok {
			t.Fatal("notification channel closed unexpectedly")
		}
		return data
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return nil
	}
}

func TestConnectSubscribesAndReadsBattery(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Name: "Polar H10", Address: testAddress}})
	_, session := connectTestSession(t, adapter)

	if session.Address != testAddress {
		t.Errorf("Address = %q, want %q", session.Address, testAddress)
	}
	if session.Name != "Polar H10" {
		t.Errorf("Name = %q, want %q", session.Name, "Polar H10")
	}
	if session.Battery != 87 {
		t.Errorf("Battery = %d, want 87", session.Battery)
	}

	adapter.latestConnection().heartRate().SimulateNotification([]byte{0x00, 0x4b})
	if got := recvNotification(t, session); len(got) != 2 || got[1] != 0x4b {
		t.Errorf("notification = %v, want [0 75]", got)
	}
}

func TestConnectDefaultsEmptyName(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	_, session := connectTestSession(t, adapter)

	if session.Name != EmptyName {
		t.Errorf("Name = %q, want %q", session.Name, EmptyName)
	}
}

func TestConnectRetriesUntilSuccess(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	adapter.connectErrs = []error{
		errors.New("le-connection-abort-by-local"),
		errors.New("busy"),
		errors.New("timeout"),
	}
	_, session := connectTestSession(t, adapter)

	if got := adapter.connectCount(); got != 4 {
		t.Errorf("connect attempts = %d, want 4", got)
	}
	if session == nil {
		t.Fatal("session should not be nil")
	}
}

func TestConnectGivesUpAfterMaxAttempts(t *testing.T) {
	fastPolling(t)
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	adapter.connectErrs = []error{errors.New("a"), errors.New("b"), errors.New("c")}

	opts := DefaultManagerOptions()
	opts.Retry = RetryPolicy{MaxAttempts: 2}
	m := newTestManager(adapter, opts)

	if _, err := m.Connect(context.Background(), Target{Address: testAddress}); err == nil {
		t.Fatal("Connect() should fail once MaxAttempts is reached")
	}
	if got := adapter.connectCount(); got != 2 {
		t.Errorf("connect attempts = %d, want 2", got)
	}
}

func TestConnectRetryHonoursContext(t *testing.T) {
	fastPolling(t)
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	for i := 0; i < 1000; i++ {
		adapter.connectErrs = append(adapter.connectErrs, errors.New("busy"))
	}

	opts := DefaultManagerOptions()
	opts.Retry = RetryPolicy{Delay: 5 * time.Millisecond}
	m := newTestManager(adapter, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := m.Connect(ctx, Target{Address: testAddress})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestConnectMissingHeartRateIsFatal(t *testing.T) {
	fastPolling(t)
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	adapter.newConn = func() *mockConnection {
		conn := newMockConnection()
		delete(conn.chars, HeartRateMeasurementUUID)
		return conn
	}
	m := newTestManager(adapter, DefaultManagerOptions())

	_, err := m.Connect(context.Background(), Target{Address: testAddress})
	if !errors.Is(err, ErrMissingCharacteristic) {
		t.Fatalf("Connect() error = %v, want ErrMissingCharacteristic", err)
	}
	if got := adapter.connectCount(); got != 1 {
		t.Errorf("connect attempts = %d, want 1 (no retry on missing characteristic)", got)
	}
	if !adapter.latestConnection().isDisconnected() {
		t.Error("connection should be dropped after a fatal discovery error")
	}
}

func TestConnectMissingBatteryIsFatal(t *testing.T) {
	fastPolling(t)
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	adapter.newConn = func() *mockConnection {
		conn := newMockConnection()
		delete(conn.chars, BatteryLevelUUID)
		return conn
	}
	m := newTestManager(adapter, DefaultManagerOptions())

	_, err := m.Connect(context.Background(), Target{Address: testAddress})
	if !errors.Is(err, ErrMissingCharacteristic) {
		t.Errorf("Connect() error = %v, want ErrMissingCharacteristic", err)
	}
}

func TestConnectBatteryReadFailureIsNotFatal(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	adapter.newConn = func() *mockConnection {
		conn := newMockConnection()
		conn.chars[BatteryLevelUUID].readErr = errors.New("not permitted")
		return conn
	}
	_, session := connectTestSession(t, adapter)

	if session.Battery != -1 {
		t.Errorf("Battery = %d, want -1", session.Battery)
	}
}

func TestConnectRetriesSubscribeFailure(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	first := true
	adapter.newConn = func() *mockConnection {
		conn := newMockConnection()
		if first {
			conn.chars[HeartRateMeasurementUUID].subscribeErr = errors.New("cccd write failed")
			first = false
		}
		return conn
	}
	_, session := connectTestSession(t, adapter)

	if got := adapter.connectCount(); got != 2 {
		t.Errorf("connect attempts = %d, want 2", got)
	}
	if session == nil {
		t.Fatal("session should not be nil")
	}
}

func TestDisconnectEndsNotificationStream(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	_, session := connectTestSession(t, adapter)

	adapter.latestConnection().SimulateDisconnect()

	select {
	case _, ok := <-session.Notifications:
		if ok {
			t.Error("expected closed channel, got a notification")
		}
	case <-time.After(time.Second):
		t.Fatal("notification channel was not closed after disconnect")
	}
}

func TestReconnectKeepsAddress(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Name: "Polar H10", Address: testAddress}})
	m, first := connectTestSession(t, adapter)
	firstConn := adapter.latestConnection()

	for i := 0; i < 3; i++ {
		next, err := m.Reconnect(context.Background(), first)
		if err != nil {
			t.Fatalf("Reconnect() error = %v", err)
		}
		if next.Address != first.Address {
			t.Errorf("Address = %q, want %q", next.Address, first.Address)
		}
		if next.ID == first.ID {
			t.Error("Reconnect() should produce a new session")
		}
		first = next
	}
	t.Cleanup(func() { _ = first.Close() })

	if !firstConn.isDisconnected() {
		t.Error("Reconnect() should disconnect the previous connection")
	}
	for _, addr := range adapter.connects {
		if addr != testAddress {
			t.Errorf("connected to %q, want %q", addr, testAddress)
		}
	}
}

func TestReconnectDropsStaleNotifications(t *testing.T) {
	adapter := newMockAdapter([]Peripheral{{Address: testAddress}})
	m, first := connectTestSession(t, adapter)
	staleChar := adapter.latestConnection().heartRate()

	next, err := m.Reconnect(context.Background(), first)
	if err != nil {
		t.Fatalf("Reconnect() error = %v", err)
	}
	t.Cleanup(func() { _ = next.Close() })

	// A late callback from the old connection must not reach either session.
	staleChar.SimulateNotification([]byte{0x00, 0x10})
	adapter.latestConnection().heartRate().SimulateNotification([]byte{0x00, 0x50})

	if got := recvNotification(t, next); got[1] != 0x50 {
		t.Errorf("new session received %v, want the fresh notification", got)
	}
	if _, ok := <-first.Notifications; ok {
		t.Error("old session should have no notifications after reconnect")
	}
}
