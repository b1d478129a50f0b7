package models

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Holder identifies the actor behind a hold: an authenticated user or a
// guest known only by contact email. Lock ownership checks use the stable
// key derived by Key, never the raw identity.
type Holder struct {
	UserID       string
	ContactEmail string
}

func AuthenticatedHolder(userID string) Holder {
	return Holder{UserID: userID}
}

func GuestHolder(email string) Holder {
	return Holder{ContactEmail: email}
}

func (h Holder) IsGuest() bool {
	return h.UserID == ""
}

func (h Holder) IsZero() bool {
	return h.UserID == "" && h.ContactEmail == ""
}

// Key returns the stable lock-ownership key. Guest keys are derived from
// the normalized contact email so retries from the same guest match.
func (h Holder) Key() string {
	if h.UserID != "" {
		return "user:" + h.UserID
	}
	sum := sha3.Sum256([]byte(strings.ToLower(strings.TrimSpace(h.ContactEmail))))
	return "guest:" + hex.EncodeToString(sum[:12])
}
