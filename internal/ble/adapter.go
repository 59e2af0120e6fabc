// Package ble finds, connects to and streams from Bluetooth LE heart-rate
// peripherals. It handles device discovery, connection management with
// retry, and the heart-rate notification subscription.
package ble

import (
	"context"
	"errors"
	"strings"
)

// Heart Rate and Battery GATT UUIDs
const (
	HeartRateServiceUUID     = "0000180d-0000-1000-8000-00805f9b34fb"
	HeartRateMeasurementUUID = "00002a37-0000-1000-8000-00805f9b34fb"
	BatteryServiceUUID       = "0000180f-0000-1000-8000-00805f9b34fb"
	BatteryLevelUUID         = "00002a19-0000-1000-8000-00805f9b34fb"
)

// EmptyName is shown in place of a peripheral name that was never advertised.
const EmptyName = "(Empty)"

var (
	// ErrMissingCharacteristic means the peripheral does not expose a
	// characteristic the bridge needs. Retrying cannot fix it.
	ErrMissingCharacteristic = errors.New("ble: required characteristic not found")
	// ErrNoAdapter means no local Bluetooth radio is available.
	ErrNoAdapter = errors.New("ble: no bluetooth adapter found")
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Read returns the current value of the characteristic.
	Read() ([]byte, error)
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Peripheral represents a discovered BLE peripheral. Two values refer to the
// same device when their addresses match, regardless of where they came from.
type Peripheral struct {
	Name    string
	Address string
	RSSI    int
}

// Label returns the display name, or EmptyName when none was advertised.
func (p Peripheral) Label() string {
	if p.Name == "" {
		return EmptyName
	}
	return p.Name
}

// SameAs reports whether p and o are the same physical device.
func (p Peripheral) SameAs(o Peripheral) bool {
	return strings.EqualFold(p.Address, o.Address)
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	// A characteristic or service that does not exist is reported as
	// ErrMissingCharacteristic.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// StartScan begins discovery. Peripherals seen from this point on are
	// reported by Peripherals until the next StartScan.
	StartScan() error
	// StopScan ends discovery.
	StopScan() error
	// Peripherals returns the peripherals currently visible to the adapter.
	Peripherals() []Peripheral
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}

// NameResolver is implemented by adapters that can look up a display name
// for a peripheral that did not advertise one.
type NameResolver interface {
	ResolveName(ctx context.Context, address string) (string, error)
}

// AdapterInfo describes a local Bluetooth radio.
type AdapterInfo struct {
	ID      string // platform identifier, e.g. "hci0"; empty for the default adapter
	Address string
	Alias   string
}

// Label returns a human-readable description for selection prompts.
func (i AdapterInfo) Label() string {
	id := i.ID
	if id == "" {
		id = "default"
	}
	switch {
	case i.Alias != "" && i.Address != "":
		return id + " " + i.Alias + " [" + i.Address + "]"
	case i.Address != "":
		return id + " [" + i.Address + "]"
	default:
		return id
	}
}
