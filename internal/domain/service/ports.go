package service

import (
	"context"

	"marketchat/internal/domain/entity"
)

// Translator renders text from one language into another. Implementations may
// be slow or fail; callers treat translation as best-effort enrichment.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// PresenceTracker knows who currently holds an open real-time connection. It
// is never authoritative: errors mean "unknown", not "offline".
//
// Presence is tracked per connection. A user is online while at least one
// connection ref is held for them, so closing one of several connections
// never hides the others.
type PresenceTracker interface {
	SetOnline(ctx context.Context, userID, connectionRef string) error
	SetOffline(ctx context.Context, userID, connectionRef string) error
	// Touch refreshes the connection and re-adds it when the tracker has
	// already evicted it.
	Touch(ctx context.Context, userID, connectionRef string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	ListOnline(ctx context.Context) ([]entity.PresenceRecord, error)
}

// TokenVerifier validates a bearer token and returns the account id it was
// issued for. HTTP requests and websocket handshakes share it.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// AttachmentChecker confirms that blob references point at stored objects.
type AttachmentChecker interface {
	CheckAttachments(ctx context.Context, refs []string) error
}
