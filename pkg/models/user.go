package models

// User is an authenticated TravelGO customer resolved from a bearer token.
type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
