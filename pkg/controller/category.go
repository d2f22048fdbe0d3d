package controller

import (
	"fmt"

	"github.com/edgehub-net/edgehub/pkg/util"
)

// Category classifies a connector slot.
type Category string

const (
	// CategoryCloud marks connectors whose peer is an upstream
	// control or telemetry service.
	CategoryCloud Category = "cloud"

	// CategoryDevice marks connectors whose peer is a local sensor,
	// actuator, or bus.
	CategoryDevice Category = "device"
)

// Categories lists both connector categories.
func Categories() []Category {
	return []Category{CategoryCloud, CategoryDevice}
}

// ParseCategory validates a category string from a command.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryCloud:
		return CategoryCloud, nil
	case CategoryDevice:
		return CategoryDevice, nil
	default:
		return "", fmt.Errorf("%w: %q", util.ErrInvalidCategory, s)
	}
}
