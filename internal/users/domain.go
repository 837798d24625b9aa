package users

import "time"

// User is the slice of the identity subsystem the authorization engine
// reads: existence, active status and the system-administrator flag.
type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	IsActive      bool      `json:"isActive"`
	IsSystemAdmin bool      `json:"isSystemAdmin"`
	CreatedAt     time.Time `json:"createdAt"`
}
