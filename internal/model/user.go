// Package model defines the data structures shared across the application.
package model

import "time"

// User represents a registered account.
//
// Username and Email are stored lowercased and are unique; DisplayName keeps
// the casing the user typed at signup. A user starts unverified and may not
// log in until the emailed verification code is redeemed.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"displayName"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never serialized
	Verified     bool      `json:"verified"`
	Admin        bool      `json:"admin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// VerificationCode is a one-time code proving control of a signup email
// address. The code itself is a signed token carrying its own expiry; the row
// exists so redemption can be limited to exactly once.
type VerificationCode struct {
	Code      string
	Username  string
	CreatedAt time.Time
}
