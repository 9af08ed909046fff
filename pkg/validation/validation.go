package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	ErrRequired      = errors.New("is required")
	ErrTooLong       = errors.New("is too long")
	ErrTooShort      = errors.New("is too short")
	ErrInvalidFormat = errors.New("has invalid format")
)

var (
	// RoomIDRegex matches stream ids and slug-like room names.
	RoomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

	UserIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]+$`)

	LoginRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

const (
	MaxRoomIDLength      = 128
	MaxUserIDLength      = 128
	MaxDisplayNameLength = 64
)

func fieldError(field string, err error) error {
	return fmt.Errorf("%s %w", field, err)
}

func ValidateRoomID(room string) error {
	if room == "" {
		return fieldError("room", ErrRequired)
	}
	if len(room) > MaxRoomIDLength {
		return fieldError("room", ErrTooLong)
	}
	if !RoomIDRegex.MatchString(room) {
		return fieldError("room", ErrInvalidFormat)
	}
	return nil
}

func ValidateUserID(userID string) error {
	if userID == "" {
		return fieldError("userId", ErrRequired)
	}
	if len(userID) > MaxUserIDLength {
		return fieldError("userId", ErrTooLong)
	}
	if !UserIDRegex.MatchString(userID) {
		return fieldError("userId", ErrInvalidFormat)
	}
	return nil
}

// ValidateDisplayName checks the human-readable name shown next to chat
// messages. Any printable Unicode is allowed.
func ValidateDisplayName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fieldError("username", ErrRequired)
	}
	if !utf8.ValidString(name) {
		return fieldError("username", ErrInvalidFormat)
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameLength {
		return fieldError("username", ErrTooLong)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fieldError("username", ErrInvalidFormat)
		}
	}
	return nil
}

// ValidateChatContent checks already-sanitized chat text against the
// configured rune limit.
func ValidateChatContent(content string, maxRunes int) error {
	if strings.TrimSpace(content) == "" {
		return fieldError("content", ErrRequired)
	}
	if !utf8.ValidString(content) {
		return fieldError("content", ErrInvalidFormat)
	}
	if utf8.RuneCountInString(content) > maxRunes {
		return fieldError("content", ErrTooLong)
	}
	return nil
}

// ValidateLogin validates the account name used for token issuance.
func ValidateLogin(login string) error {
	login = strings.TrimSpace(login)
	if login == "" {
		return fieldError("username", ErrRequired)
	}
	if len(login) < 3 {
		return fieldError("username", ErrTooShort)
	}
	if len(login) > 50 {
		return fieldError("username", ErrTooLong)
	}
	if !LoginRegex.MatchString(login) {
		return fieldError("username", ErrInvalidFormat)
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return fieldError("password", ErrRequired)
	}
	if len(password) < 6 {
		return fieldError("password", ErrTooShort)
	}
	if len(password) > 128 {
		return fieldError("password", ErrTooLong)
	}
	return nil
}
