package ble

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"tinygo.org/x/bluetooth"
)

// BlueZ D-Bus names
const (
	bluezBusName      = "org.bluez"
	bluezAdapterIface = "org.bluez.Adapter1"
	bluezDeviceIface  = "org.bluez.Device1"
	defaultAdapterID  = "hci0"
)

// ListAdapters returns the radios BlueZ knows about, ordered by ID.
func ListAdapters() ([]AdapterInfo, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: connect to system bus: %w", err)
	}

	objects := make(map[dbus.ObjectPath]map[string]map[string]dbus.Variant)
	obj := conn.Object(bluezBusName, "/")
	if err := obj.Call("org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("ble: list adapters: %w", err)
	}

	var infos []AdapterInfo
	for p, ifaces := range objects {
		props, ok := ifaces[bluezAdapterIface]
		if !ok {
			continue
		}
		infos = append(infos, AdapterInfo{
			ID:      path.Base(string(p)),
			Address: variantString(props["Address"]),
			Alias:   variantString(props["Alias"]),
		})
	}
	slices.SortFunc(infos, func(a, b AdapterInfo) int {
		return strings.Compare(a.ID, b.ID)
	})
	return infos, nil
}

// OpenAdapter returns the tinygo adapter for a BlueZ adapter ID.
func OpenAdapter(id string) *bluetooth.Adapter {
	if id == "" {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(id)
}

// lookupDeviceName reads the Name property BlueZ caches for a device.
func lookupDeviceName(ctx context.Context, adapterID, address string) (string, error) {
	if adapterID == "" {
		adapterID = defaultAdapterID
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return "", fmt.Errorf("ble: connect to system bus: %w", err)
	}

	devicePath := dbus.ObjectPath("/org/bluez/" + adapterID + "/dev_" +
		strings.ReplaceAll(strings.ToUpper(address), ":", "_"))

	var name dbus.Variant
	err = conn.Object(bluezBusName, devicePath).
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, bluezDeviceIface, "Name").
		Store(&name)
	if err != nil {
		return "", fmt.Errorf("ble: read name of %s: %w", address, err)
	}
	return variantString(name), nil
}

func variantString(v dbus.Variant) string {
	s, _ := v.Value().(string)
	return s
}
