package schema

import (
	"fmt"
	"os"
)

// LoadDevicesFile reads a devices JSON file (the {devices:[...]}
// shape from spec.md §6) from path and returns its device
// descriptions, for the CLI's startup preload.
func LoadDevicesFile(path string) ([]*Device, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading devices file: %w", err)
	}
	devices, err := ParseDevicesJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: parsing devices file: %w", err)
	}
	return devices, nil
}
