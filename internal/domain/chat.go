package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrContentEmpty   = errors.New("message content empty")
	ErrContentTooLong = errors.New("message content too long")
)

// ChatMessage only exists as a broadcast payload, it is never stored.
type ChatMessage struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// NormalizeContent trims the line and enforces maxLen (in runes, 0 means unlimited).
func NormalizeContent(content string, maxLen int) (string, error) {
	c := strings.TrimSpace(content)
	if c == "" {
		return "", ErrContentEmpty
	}
	if maxLen > 0 && len([]rune(c)) > maxLen {
		return "", ErrContentTooLong
	}
	return c, nil
}
