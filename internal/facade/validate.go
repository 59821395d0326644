package facade

import (
	"github.com/orchestrator/fabric/internal/orchtypes"
)

// Bounds on request payload shapes (spec §4.9: "bounded string length,
// closed-set validation of ... tags, bounded collection sizes").
const (
	maxStringLen     = 8192
	maxCollectionLen = 256
)

func validateString(s, field string) error {
	if len(s) == 0 {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "%s must not be empty", field)
	}
	if len(s) > maxStringLen {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "%s exceeds max length %d", field, maxStringLen)
	}
	return nil
}

func validateCapability(c orchtypes.Capability) error {
	if !c.IsValid() {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "unknown capability %q", c)
	}
	return nil
}

func validatePriority(p orchtypes.Priority) error {
	if !p.IsValid() {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "unknown priority %q", p)
	}
	return nil
}

func validateCollectionLen(n int, field string) error {
	if n > maxCollectionLen {
		return orchtypes.NewAPIError(orchtypes.ErrInvalidInput, "%s exceeds max collection size %d", field, maxCollectionLen)
	}
	return nil
}
