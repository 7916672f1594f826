// Package model defines the domain entities and API types for DataPilot.
package model

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

// Field length limits for user-supplied account fields. These bound what ends
// up in Postgres TEXT columns and in prompt personalization blocks.
const (
	MaxUsernameLen    = 64
	MaxEmailLen       = 254
	MaxNameLen        = 200
	MaxPreferencesLen = 2000
	MinPasswordLen    = 8
	MaxPasswordLen    = 512
)

// User is a registered account. PasswordHash is never serialized.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`

	// Optional profile fields used to personalize generated reports.
	Name           *string    `json:"name,omitempty"`
	DateOfBirth    *time.Time `json:"date_of_birth,omitempty"`
	GenderIdentity *string    `json:"gender_identity,omitempty"`
	Preferences    *string    `json:"preferences,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidateUsername checks that a username conforms to the allowed format.
// Usernames must start with a letter and contain only alphanumeric
// characters, hyphens, underscores, and dots.
func ValidateUsername(username string) error {
	if len(username) == 0 {
		return fmt.Errorf("username must not be empty")
	}
	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must be at most %d characters", MaxUsernameLen)
	}
	first := username[0]
	if !(first >= 'a' && first <= 'z' || first >= 'A' && first <= 'Z') {
		return fmt.Errorf("username must start with a letter")
	}
	for i := 0; i < len(username); i++ {
		c := username[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.':
		default:
			return fmt.Errorf("username contains invalid character %q", c)
		}
	}
	return nil
}

// ValidateEmail checks that an email address parses per RFC 5322 and fits
// the column limit.
func ValidateEmail(email string) error {
	if len(email) == 0 {
		return fmt.Errorf("email must not be empty")
	}
	if len(email) > MaxEmailLen {
		return fmt.Errorf("email must be at most %d characters", MaxEmailLen)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword enforces the password length bounds. Composition rules are
// deliberately not enforced; length is the only requirement.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	}
	if len(password) > MaxPasswordLen {
		return fmt.Errorf("password must be at most %d characters", MaxPasswordLen)
	}
	return nil
}

// ValidateProfileFields checks the optional profile fields on registration
// and profile update requests.
func ValidateProfileFields(name, genderIdentity, preferences *string) error {
	if name != nil && len(*name) > MaxNameLen {
		return fmt.Errorf("name must be at most %d characters", MaxNameLen)
	}
	if genderIdentity != nil && len(*genderIdentity) > MaxNameLen {
		return fmt.Errorf("gender_identity must be at most %d characters", MaxNameLen)
	}
	if preferences != nil && len(*preferences) > MaxPreferencesLen {
		return fmt.Errorf("preferences must be at most %d characters", MaxPreferencesLen)
	}
	return nil
}
