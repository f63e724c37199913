package services

import (
	"github.com/jinzhu/inflection"

	"github.com/travelgo/chat-engine/pkg/models"
)

// tableOverrides holds kinds whose table is not the plain plural.
var tableOverrides = map[models.EntityKind]string{
	models.EntitySchedule: "trip_schedules",
}

// TableForKind returns the table that stores entities of kind.
func TableForKind(kind models.EntityKind) string {
	if table, ok := tableOverrides[kind]; ok {
		return table
	}
	return inflection.Plural(string(kind))
}
