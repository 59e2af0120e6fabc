//go:build !linux

package ble

import (
	"context"

	"tinygo.org/x/bluetooth"
)

// ListAdapters returns the single system adapter. Only BlueZ exposes more
// than one radio to tinygo/bluetooth.
func ListAdapters() ([]AdapterInfo, error) {
	return []AdapterInfo{{}}, nil
}

// OpenAdapter returns the system default adapter; id is ignored.
func OpenAdapter(id string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}

func lookupDeviceName(context.Context, string, string) (string, error) {
	return "", nil
}
