// Command test-scan is a manual test for adapter enumeration and discovery.
// It lists the local adapters, then prints the visible peripherals after
// each scan window. Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-scan [--adapter hci0] [--window 3s]
package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/hrbridge/internal/ble"
)

func main() {
	adapterID := flag.String("adapter", "", "bluetooth adapter id; empty uses the default")
	window := flag.Duration("window", 3*time.Second, "scan window")
	flag.Parse()

	adapters, err := ble.ListAdapters()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	fmt.Println("Adapters:")
	for _, a := range adapters {
		fmt.Printf("  %s\n", a.Label())
	}

	adapter := ble.NewTinygoAdapter(ble.OpenAdapter(*adapterID), *adapterID)
	if err := adapter.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Scanning in %s windows. Press Ctrl+C to exit.\n", *window)
	for ctx.Err() == nil {
		peripherals, err := ble.Scan(ctx, adapter, *window)
		if err != nil {
			break
		}
		fmt.Printf("\n%d peripheral(s) at %s\n", len(peripherals), time.Now().Format(time.TimeOnly))
		for _, p := range peripherals {
			name := p.Label()
			if p.Name == "" {
				if resolved, err := adapter.ResolveName(ctx, p.Address); err == nil && resolved != "" {
					name = resolved
				}
			}
			fmt.Printf("  %-17s %4d dBm  %s\n", p.Address, p.RSSI, name)
		}
	}

	fmt.Println("\nDone.")
}
