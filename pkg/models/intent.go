package models

// Intent is the coarse classification of a chat message.
type Intent string

const (
	IntentSensitive Intent = "sensitive"
	IntentPrivate   Intent = "private"
	IntentPublic    Intent = "public"
	IntentUnknown   Intent = "unknown"
)

// String returns the intent label.
func (i Intent) String() string {
	return string(i)
}

// AllowsThematicAnswer reports whether an intent may fall back to a general
// travel answer when no database context was found.
func (i Intent) AllowsThematicAnswer() bool {
	return i == IntentPublic || i == IntentUnknown
}
