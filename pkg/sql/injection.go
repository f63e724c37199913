package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value that libinjection flagged.
type InjectionCheckResult struct {
	Field       string
	Value       string
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckIdentifierForInjection screens free-form user input, such as a booking
// code hint or the message text, for SQL injection patterns. Returns nil when
// clean.
//
//	CheckIdentifierForInjection("booking_code", "WELCOME200")   // nil
//	CheckIdentifierForInjection("booking_code", "' OR '1'='1")  // flagged
func CheckIdentifierForInjection(field, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}
