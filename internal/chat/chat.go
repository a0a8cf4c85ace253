// Package chat defines the small surface of the chat platform the core
// depends on: deleting a rendered message and messaging a user. The
// telegram adapter implements Messenger; tests substitute fakes.
package chat

import (
	"context"
	"errors"
)

// ErrMessageNotFound reports that the referenced message no longer exists
// on the platform. Callers performing cleanup treat it as success.
var ErrMessageNotFound = errors.New("message not found")

// MessageRef locates one rendered message.
type MessageRef struct {
	ChatID    int64
	MessageID int64
}

// Messenger is the outbound chat-platform API consumed by the core.
type Messenger interface {
	// DeleteMessage removes a rendered message. A message that is already
	// gone is reported as ErrMessageNotFound.
	DeleteMessage(ctx context.Context, ref MessageRef) error

	// SendUser sends a direct message to a user. Best-effort; callers may
	// ignore the error.
	SendUser(ctx context.Context, userID int64, text string) error
}
