package chat

import "strings"

// UserIdentity is the user asserted by the identity provider. Email is the
// unique key of a session.
type UserIdentity struct {
	DisplayName string `json:"name"`
	Email       string `json:"email"`
	AvatarURL   string `json:"picture,omitempty"`
}

// Complete reports whether both the display name and the email are present.
func (u UserIdentity) Complete() bool {
	return strings.TrimSpace(u.DisplayName) != "" && strings.TrimSpace(u.Email) != ""
}

// SameUser reports whether two identities share the session key.
func (u UserIdentity) SameUser(other UserIdentity) bool {
	return strings.EqualFold(strings.TrimSpace(u.Email), strings.TrimSpace(other.Email))
}
