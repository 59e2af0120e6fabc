package ble

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NormalizeAddress canonicalizes a peripheral address given on the command
// line or in the config file. MAC addresses are accepted with or without
// delimiters ("aa-bb-cc-dd-ee-ff", "AABBCCDDEEFF") and come back as
// upper-case colon form. On macOS peripherals are identified by a
// CoreBluetooth UUID instead, which comes back in lower-case canonical form.
func NormalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("ble: empty address")
	}

	if len(s) == 36 {
		id, err := uuid.Parse(s)
		if err != nil {
			return "", fmt.Errorf("ble: invalid address %q: %w", s, err)
		}
		return id.String(), nil
	}

	hex := strings.NewReplacer(":", "", "-", "", ".", "").Replace(s)
	if len(hex) != 12 {
		return "", fmt.Errorf("ble: invalid address %q", s)
	}
	for _, c := range hex {
		if !isHex(c) {
			return "", fmt.Errorf("ble: invalid address %q", s)
		}
	}

	hex = strings.ToUpper(hex)
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String(), nil
}

func isHex(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
