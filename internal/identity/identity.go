// Package identity derives canonical ids for two-party conversations.
package identity

import (
	"errors"
	"strings"
)

// Separator joins the two sorted participant ids. Participant ids may not
// contain it.
const Separator = ":"

var (
	// ErrIdentityAmbiguous is returned when fewer than two distinct
	// participants are given.
	ErrIdentityAmbiguous = errors.New("conversation needs two distinct participants")
	// ErrInvalidParticipant is returned for empty ids or ids containing Separator.
	ErrInvalidParticipant = errors.New("invalid participant id")
)

// DeriveConversationID returns the same id for (a, b) and (b, a).
func DeriveConversationID(a, b string) (string, error) {
	if err := validate(a); err != nil {
		return "", err
	}
	if err := validate(b); err != nil {
		return "", err
	}
	if a == b {
		return "", ErrIdentityAmbiguous
	}
	if b < a {
		a, b = b, a
	}
	return a + Separator + b, nil
}

// Participants splits a derived id back into its sorted pair.
func Participants(conversationID string) (string, string, error) {
	a, b, ok := strings.Cut(conversationID, Separator)
	if !ok || a == "" || b == "" || strings.Contains(b, Separator) || a >= b {
		return "", "", ErrInvalidParticipant
	}
	return a, b, nil
}

// IsDirect reports whether id has the shape of a derived two-party id.
func IsDirect(conversationID string) bool {
	_, _, err := Participants(conversationID)
	return err == nil
}

func validate(p string) error {
	if p == "" || strings.Contains(p, Separator) {
		return ErrInvalidParticipant
	}
	return nil
}
