package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// scanPollInterval is how often ScanForAddress checks the visible set.
var scanPollInterval = time.Second

// Scan runs discovery for exactly d and returns whatever the adapter reports
// as visible afterwards. An empty result is not an error.
func Scan(ctx context.Context, adapter Adapter, d time.Duration) ([]Peripheral, error) {
	if err := adapter.StartScan(); err != nil {
		return nil, fmt.Errorf("ble: start scan: %w", err)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		_ = adapter.StopScan()
		return nil, ctx.Err()
	case <-timer.C:
	}

	if err := adapter.StopScan(); err != nil {
		return nil, err
	}
	return adapter.Peripherals(), nil
}

// ScanForAddress scans until a peripheral with the given address is visible.
// It has no timeout of its own; bound it with ctx.
func ScanForAddress(ctx context.Context, adapter Adapter, address string) (Peripheral, error) {
	slog.Info("[BLE] scanning for peripheral", "address", address)

	if err := adapter.StartScan(); err != nil {
		return Peripheral{}, fmt.Errorf("ble: start scan: %w", err)
	}

	want := Peripheral{Address: address}
	ticker := time.NewTicker(scanPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = adapter.StopScan()
			return Peripheral{}, ctx.Err()
		case <-ticker.C:
		}

		for _, p := range adapter.Peripherals() {
			if p.SameAs(want) {
				if err := adapter.StopScan(); err != nil {
					slog.Warn("[BLE] failed to stop scan", "error", err)
				}
				slog.Info("[BLE] peripheral found", "address", p.Address, "name", p.Label())
				return p, nil
			}
		}
	}
}
