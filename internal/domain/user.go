package domain

import "time"

// User is the subset of the identity directory needed to attribute ownership.
type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}
