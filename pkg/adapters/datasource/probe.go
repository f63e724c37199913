package datasource

import (
	"fmt"

	"github.com/travelgo/chat-engine/pkg/apperrors"
)

// probeTargets lists the (table, column) pairs that identifier existence
// probes may touch. Identifiers are quoted, never interpolated from input,
// but the allowlist keeps probes from becoming a general lookup channel.
var probeTargets = map[string]map[string]bool{
	"promos":         {"promo_code": true},
	"trips":          {"slug": true, "id": true},
	"blogs":          {"slug": true},
	"categories":     {"slug": true},
	"tags":           {"slug": true},
	"trip_schedules": {"id": true},
	"reviews":        {"id": true},
	"bookings":       {"booking_code": true},
}

// CheckProbeTarget returns an error wrapping apperrors.ErrProbeTargetNotAllowed
// unless table.column is a registered probe target.
func CheckProbeTarget(table, column string) error {
	if probeTargets[table][column] {
		return nil
	}
	return fmt.Errorf("%s.%s: %w", table, column, apperrors.ErrProbeTargetNotAllowed)
}
