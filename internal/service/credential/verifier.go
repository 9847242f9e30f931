// Package credential decodes identity-provider tokens into user identities.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zhouzirui/private-chat/internal/model/chat"
)

// ErrInvalidCredential reports a token that cannot be decoded or lacks the
// name or email claim.
var ErrInvalidCredential = errors.New("invalid credential")

// claims holds the profile fields issued by the identity provider.
type claims struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
	jwt.RegisteredClaims
}

var parser = jwt.NewParser()

// Verify decodes the payload of raw locally. The signature is not checked;
// that trust belongs to the identity provider's own client library.
func Verify(raw string) (chat.UserIdentity, error) {
	token := strings.TrimSpace(raw)
	if token == "" {
		return chat.UserIdentity{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	var c claims
	if _, _, err := parser.ParseUnverified(token, &c); err != nil {
		return chat.UserIdentity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	identity := chat.UserIdentity{
		DisplayName: strings.TrimSpace(c.Name),
		Email:       strings.TrimSpace(c.Email),
		AvatarURL:   strings.TrimSpace(c.Picture),
	}
	if identity.DisplayName == "" {
		return chat.UserIdentity{}, fmt.Errorf("%w: missing name claim", ErrInvalidCredential)
	}
	if identity.Email == "" {
		return chat.UserIdentity{}, fmt.Errorf("%w: missing email claim", ErrInvalidCredential)
	}
	return identity, nil
}
