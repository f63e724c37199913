package models

import (
	"fmt"
	"strconv"
)

// EntityKind names a domain entity a user can refer to by identifier.
type EntityKind string

const (
	EntityPromo    EntityKind = "promo"
	EntityTrip     EntityKind = "trip"
	EntityBlog     EntityKind = "blog"
	EntityCategory EntityKind = "category"
	EntityTag      EntityKind = "tag"
	EntitySchedule EntityKind = "schedule"
	EntityReview   EntityKind = "review"
	EntityBooking  EntityKind = "booking"
)

// GatedEntityKinds lists the kinds checked by the needs-identifier stages, in
// evaluation order. Bookings have dedicated stages.
var GatedEntityKinds = []EntityKind{
	EntityPromo,
	EntityTrip,
	EntityBlog,
	EntityCategory,
	EntityTag,
	EntitySchedule,
	EntityReview,
}

// EntityIdentifier is a syntactically extracted reference to one entity row.
// It is only trusted after an existence probe succeeded.
type EntityIdentifier struct {
	Kind   EntityKind `json:"kind"`
	Table  string     `json:"table"`
	Field  string     `json:"field"`  // short audit name: code, slug, id
	Column string     `json:"column"` // probed column
	Key    string     `json:"key"`
}

// AuditKey returns the "<table>.by_<field>" key reported when the identifier
// could not be resolved.
func (e EntityIdentifier) AuditKey() string {
	return fmt.Sprintf("%s.by_%s", e.Table, e.Field)
}

// ProbeValue returns the key converted to the probed column's type.
func (e EntityIdentifier) ProbeValue() any {
	if e.Field == "id" {
		if id, err := strconv.ParseInt(e.Key, 10, 64); err == nil {
			return id
		}
	}
	return e.Key
}
