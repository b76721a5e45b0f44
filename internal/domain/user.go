// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 64
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameTooLong = errors.New("username too long")
)

type UserID string

// User is a read-only snapshot of an identity owned by the persistence gateway.
type User struct {
	ID    UserID `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

func (u User) Validate() error {
	if len(u.ID) == 0 {
		return ErrUserIDEmpty
	}
	if len(u.ID) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	if len(u.Name) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}

// DisplayName falls back to the id for users that never set a name.
func (u User) DisplayName() string {
	if u.Name == "" {
		return string(u.ID)
	}
	return u.Name
}
