package validation

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRoomID(t *testing.T) {
	tests := []struct {
		name    string
		room    string
		wantErr error
	}{
		{"simple", "s1", nil},
		{"stream id", "stream_42", nil},
		{"namespaced", "live:channel.7", nil},
		{"empty", "", ErrRequired},
		{"too long", strings.Repeat("r", MaxRoomIDLength+1), ErrTooLong},
		{"space", "my room", ErrInvalidFormat},
		{"slash", "a/b", ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoomID(tt.room)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil) != (err == nil) {
				t.Errorf("ValidateRoomID(%q) error = %v, want %v", tt.room, err, tt.wantErr)
			}
		})
	}
}

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{"simple", "u1", false},
		{"email-like", "alice@example.com", false},
		{"empty", "", true},
		{"space", "al ice", true},
		{"too long", strings.Repeat("u", MaxUserIDLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUserID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateDisplayName(t *testing.T) {
	tests := []struct {
		name        string
		displayName string
		wantErr     bool
	}{
		{"ascii", "A", false},
		{"with spaces", "Jane Doe", false},
		{"unicode", "Żaneta 🎉", false},
		{"blank", "   ", true},
		{"control char", "bad\x07name", true},
		{"too long", strings.Repeat("é", MaxDisplayNameLength+1), true},
		{"max length runes", strings.Repeat("é", MaxDisplayNameLength), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDisplayName(tt.displayName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDisplayName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateChatContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		wantErr error
	}{
		{"ok", "hi", 500, nil},
		{"empty", "", 500, ErrRequired},
		{"whitespace", " \n\t ", 500, ErrRequired},
		{"exact limit counts runes", strings.Repeat("ж", 5), 5, nil},
		{"over limit", strings.Repeat("a", 6), 5, ErrTooLong},
		{"invalid utf8", "\xff\xfe", 500, ErrInvalidFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatContent(tt.content, tt.max)
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil) != (err == nil) {
				t.Errorf("ValidateChatContent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateLogin(t *testing.T) {
	tests := []struct {
		name    string
		login   string
		wantErr bool
	}{
		{"valid", "user123", false},
		{"underscore", "user_name", false},
		{"too short", "ab", true},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 51), true},
		{"invalid chars", "user name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLogin(tt.login)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLogin() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "secret123", false},
		{"empty", "", true},
		{"too short", "12345", true},
		{"too long", strings.Repeat("p", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
