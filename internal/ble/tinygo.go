package ble

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// scanStopTimeout bounds how long StopScan waits for the scan goroutine.
const scanStopTimeout = 2 * time.Second

// TinygoAdapter wraps tinygo-org/bluetooth. On Linux it talks to BlueZ, on
// macOS to CoreBluetooth and on Windows to WinRT.
// On macOS, BLE device addresses are CoreBluetooth UUIDs (not MAC addresses).
type TinygoAdapter struct {
	adapter *bluetooth.Adapter
	id      string

	conns *connRegistry

	// mu protects everything below.
	mu       sync.Mutex
	scanning bool
	scanDone chan error
	visible  map[string]Peripheral // keyed by upper-cased address
}

// NewTinygoAdapter wraps a tinygo adapter. id is the platform adapter
// identifier (e.g. "hci0") and may be empty for the default adapter.
func NewTinygoAdapter(adapter *bluetooth.Adapter, id string) *TinygoAdapter {
	return &TinygoAdapter{
		adapter: adapter,
		id:      id,
		conns:   newConnRegistry(),
		visible: make(map[string]Peripheral),
	}
}

func (a *TinygoAdapter) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo/bluetooth reports disconnects at the adapter level only, so
	// route them to the matching connection here.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		if conn := a.conns.dropped(device.Address.String()); conn != nil {
			conn.fireDisconnect()
		}
	})

	return nil
}

func (a *TinygoAdapter) StartScan() error {
	a.mu.Lock()
	if a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = true
	a.visible = make(map[string]Peripheral)
	done := make(chan error, 1)
	a.scanDone = done
	a.mu.Unlock()

	// Scan blocks until StopScan is called.
	go func() {
		done <- a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			p := Peripheral{
				Name:    result.LocalName(),
				Address: result.Address.String(),
				RSSI:    int(result.RSSI),
			}
			key := strings.ToUpper(p.Address)
			a.mu.Lock()
			defer a.mu.Unlock()
			// Scan responses without a name must not erase one we already saw.
			if prev, ok := a.visible[key]; ok && p.Name == "" {
				p.Name = prev.Name
			}
			a.visible[key] = p
		})
	}()

	return nil
}

func (a *TinygoAdapter) StopScan() error {
	a.mu.Lock()
	if !a.scanning {
		a.mu.Unlock()
		return nil
	}
	a.scanning = false
	done := a.scanDone
	a.mu.Unlock()

	stopErr := a.adapter.StopScan()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ble: scan: %w", err)
		}
	case <-time.After(scanStopTimeout):
	}
	if stopErr != nil {
		return fmt.Errorf("ble: stop scan: %w", stopErr)
	}
	return nil
}

func (a *TinygoAdapter) Peripherals() []Peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Peripheral, 0, len(a.visible))
	for _, p := range a.visible {
		out = append(out, p)
	}
	slices.SortFunc(out, func(x, y Peripheral) int {
		return strings.Compare(x.Address, y.Address)
	})
	return out
}

// ResolveName asks the platform for a cached device name. Only BlueZ keeps
// one; elsewhere the empty string is returned.
func (a *TinygoAdapter) ResolveName(ctx context.Context, address string) (string, error) {
	return lookupDeviceName(ctx, a.id, address)
}

func (a *TinygoAdapter) Connect(ctx context.Context, address string) (Connection, error) {
	var addr bluetooth.Address
	addr.Set(address)

	// tinygo/bluetooth's Connect blocks internally with its own timeout.
	// We wrap it to also respect our ctx cancellation.
	device, err := awaitConnect(ctx, func() (bluetooth.Device, error) {
		return a.adapter.Connect(addr, bluetooth.ConnectionParams{})
	}, func(late bluetooth.Device) {
		slog.Debug("[BLE] dropping connection that completed after cancel", "address", address)
		_ = late.Disconnect()
	})
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w", address, err)
	}

	conn := &tinygoConnection{
		device: device,
		key:    device.Address.String(),
		conns:  a.conns,
	}
	a.conns.add(conn.key, conn)
	return conn, nil
}

type connectResult[T any] struct {
	conn T
	err  error
}

// awaitConnect runs connect in the background and waits for it or ctx.
// A connection that succeeds after ctx is done is passed to release.
func awaitConnect[T any](ctx context.Context, connect func() (T, error), release func(T)) (T, error) {
	ch := make(chan connectResult[T], 1)
	go func() {
		conn, err := connect()
		ch <- connectResult[T]{conn, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if late := <-ch; late.err == nil {
				release(late.conn)
			}
		}()
		var zero T
		return zero, ctx.Err()
	case result := <-ch:
		return result.conn, result.err
	}
}

// connRegistry routes adapter-level disconnect events to connections.
// Several links to one address can overlap during a reconnect, so
// disconnects we initiated are expected and not charged to the link
// that replaced them.
type connRegistry struct {
	mu      sync.Mutex
	active  map[string]*tinygoConnection
	closing map[string]int
}

func newConnRegistry() *connRegistry {
	return &connRegistry{
		active:  make(map[string]*tinygoConnection),
		closing: make(map[string]int),
	}
}

func (r *connRegistry) add(key string, c *tinygoConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[key] = c
}

// closed records that c is being disconnected locally.
func (r *connRegistry) closed(key string, c *tinygoConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[key] == c {
		delete(r.active, key)
	}
	r.closing[key]++
}

// closeFailed undoes closed when the local disconnect did not happen.
func (r *connRegistry) closeFailed(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing[key] > 0 {
		r.closing[key]--
	}
}

// dropped handles a disconnect event for key. It returns the connection
// that went away, or nil when the event answers a local disconnect or
// nothing is registered.
func (r *connRegistry) dropped(key string) *tinygoConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closing[key] > 0 {
		r.closing[key]--
		if r.closing[key] == 0 {
			delete(r.closing, key)
		}
		return nil
	}
	c := r.active[key]
	delete(r.active, key)
	return c
}

// Compile-time check that TinygoAdapter implements Adapter.
var (
	_ Adapter      = (*TinygoAdapter)(nil)
	_ NameResolver = (*TinygoAdapter)(nil)
)

type tinygoConnection struct {
	device bluetooth.Device
	key    string
	conns  *connRegistry

	mu           sync.Mutex
	disconnectCb func()
}

func (c *tinygoConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	svcUUID, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, err
	}
	charUUIDParsed, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, err
	}

	// Backends report a filtered lookup that matched nothing as an error,
	// so discovery failures count as a missing characteristic.
	svcs, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("%w: service %s: %w", ErrMissingCharacteristic, serviceUUID, err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("%w: service %s", ErrMissingCharacteristic, serviceUUID)
	}

	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUIDParsed})
	if err != nil {
		return nil, fmt.Errorf("%w: characteristic %s: %w", ErrMissingCharacteristic, charUUID, err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("%w: characteristic %s", ErrMissingCharacteristic, charUUID)
	}

	return &tinygoCharacteristic{char: &chars[0]}, nil
}

func (c *tinygoConnection) Disconnect() error {
	c.conns.closed(c.key, c)
	if err := c.device.Disconnect(); err != nil {
		c.conns.closeFailed(c.key)
		return err
	}
	return nil
}

func (c *tinygoConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

func (c *tinygoConnection) fireDisconnect() {
	c.mu.Lock()
	cb := c.disconnectCb
	c.mu.Unlock()
	if cb != nil {
		cb()
	}
}

type tinygoCharacteristic struct {
	char *bluetooth.DeviceCharacteristic
}

func (c *tinygoCharacteristic) Read() ([]byte, error) {
	buf := make([]byte, 64)
	n, err := c.char.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *tinygoCharacteristic) Subscribe(cb func([]byte)) error {
	return c.char.EnableNotifications(func(buf []byte) {
		cb(buf)
	})
}
