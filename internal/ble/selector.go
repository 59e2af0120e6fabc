package ble

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const scanAgainLabel = "[Scan again]"

// Chooser presents labels to an operator and returns the chosen index.
type Chooser interface {
	Choose(prompt string, labels []string) (int, error)
}

// Target says which peripheral to connect to. An empty Address means the
// operator picks one interactively.
type Target struct {
	Address string
}

// Selector turns a Target into exactly one Peripheral.
type Selector struct {
	adapter      Adapter
	chooser      Chooser
	scanDuration time.Duration
}

// NewSelector creates a Selector. chooser may be nil when every Target
// carries an address.
func NewSelector(adapter Adapter, chooser Chooser) *Selector {
	return &Selector{
		adapter:      adapter,
		chooser:      chooser,
		scanDuration: time.Second,
	}
}

// Select resolves target to a visible peripheral. Address targets block
// until the device shows up; interactive targets loop until the operator
// picks a peripheral. Neither gives up on its own.
func (s *Selector) Select(ctx context.Context, target Target) (Peripheral, error) {
	if target.Address != "" {
		return ScanForAddress(ctx, s.adapter, target.Address)
	}
	if s.chooser == nil {
		return Peripheral{}, fmt.Errorf("ble: no peripheral address and no interactive chooser")
	}
	return s.interactive(ctx)
}

func (s *Selector) interactive(ctx context.Context) (Peripheral, error) {
	for {
		peripherals, err := Scan(ctx, s.adapter, s.scanDuration)
		if err != nil {
			return Peripheral{}, err
		}
		if len(peripherals) == 0 {
			slog.Info("[BLE] no peripherals found, scanning again")
			continue
		}

		labels := append([]string{scanAgainLabel}, displayNames(ctx, s.adapter, peripherals)...)
		choice, err := s.chooser.Choose("Select bluetooth peripheral", labels)
		if err != nil {
			return Peripheral{}, fmt.Errorf("ble: select peripheral: %w", err)
		}
		if choice == 0 {
			slog.Info("[BLE] user chose to scan again")
			continue
		}

		// Account for the "scan again" item.
		idx := choice - 1
		if idx < 0 || idx >= len(peripherals) {
			continue
		}
		p := peripherals[idx]
		if p.Name == "" && labels[choice] != EmptyName {
			p.Name = labels[choice]
		}
		return p, nil
	}
}

// displayNames returns one label per peripheral, in the same order. Names
// missing from the advertisement are looked up concurrently when the
// adapter can resolve them.
func displayNames(ctx context.Context, adapter Adapter, peripherals []Peripheral) []string {
	labels := make([]string, len(peripherals))
	resolver, _ := adapter.(NameResolver)

	var wg sync.WaitGroup
	for i, p := range peripherals {
		if p.Name != "" || resolver == nil {
			labels[i] = p.Label()
			continue
		}
		i, p := i, p
		wg.Add(1)
		go func() {
			defer wg.Done()
			name, err := resolver.ResolveName(ctx, p.Address)
			if err != nil || name == "" {
				labels[i] = EmptyName
				return
			}
			labels[i] = name
		}()
	}
	wg.Wait()
	return labels
}

// ChooseAdapter picks one radio: the only one if there is exactly one,
// otherwise whichever the operator selects.
func ChooseAdapter(chooser Chooser, adapters []AdapterInfo) (AdapterInfo, error) {
	switch len(adapters) {
	case 0:
		return AdapterInfo{}, ErrNoAdapter
	case 1:
		return adapters[0], nil
	}
	if chooser == nil {
		return adapters[0], nil
	}

	labels := make([]string, len(adapters))
	for i, a := range adapters {
		labels[i] = a.Label()
	}
	choice, err := chooser.Choose("Select bluetooth adapter", labels)
	if err != nil {
		return AdapterInfo{}, fmt.Errorf("ble: select adapter: %w", err)
	}
	if choice < 0 || choice >= len(adapters) {
		return AdapterInfo{}, fmt.Errorf("ble: adapter selection %d out of range", choice)
	}
	return adapters[choice], nil
}
