package bom

import "fmt"

// ParsePolicy maps the DURATION_POLICY config value to a DurationPolicy.
func ParsePolicy(raw string) (DurationPolicy, error) {
	switch DurationPolicy(raw) {
	case "", DurationPerBatch:
		return DurationPerBatch, nil
	case DurationPerUnit:
		return DurationPerUnit, nil
	default:
		return "", fmt.Errorf("bom: unknown duration policy %q", raw)
	}
}
