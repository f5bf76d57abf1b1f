// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const MaxUserIDLen = 64

var ErrInvalidUserID = errors.New("invalid user id")

// UserID is the opaque stable identifier of an account.
type UserID string

func (id UserID) String() string { return string(id) }

// ParseUserID trims and checks a client-supplied identity claim.
func ParseUserID(raw string) (UserID, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > MaxUserIDLen {
		return "", ErrInvalidUserID
	}
	return UserID(s), nil
}
