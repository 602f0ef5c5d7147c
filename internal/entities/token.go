package entities

import "fmt"

// AccessToken carries the authenticated caller of a security operation.
// Authentication itself happens upstream; the engine only resolves the
// identity name against the directory.
type AccessToken struct {
	IdentityName string // Name of the authenticated identity
}

// NewAccessToken creates a token for an authenticated identity name.
func NewAccessToken(identityName string) *AccessToken {
	return &AccessToken{IdentityName: identityName}
}

// Validate checks if the token can name a caller at all.
// Whether the identity exists in the directory is checked separately.
func (t *AccessToken) Validate() error {
	if t == nil {
		return fmt.Errorf("token is required")
	}
	if t.IdentityName == "" {
		return fmt.Errorf("token identity name is required")
	}
	return nil
}
