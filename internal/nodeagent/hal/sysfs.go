package hal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// readNumber reads a single numeric sysfs attribute.
func readNumber(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// writeBool writes 1 or 0 to a sysfs attribute.
func writeBool(path string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return os.WriteFile(path, []byte(v), 0o644)
}
