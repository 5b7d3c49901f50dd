package auth

import "errors"

// ErrInvalidCredential is returned when a bearer credential fails verification.
var ErrInvalidCredential = errors.New("invalid credential")

// Verifier validates opaque bearer credentials and resolves them to an identity.
// It is the only piece of authentication the messaging core performs; login,
// registration and token minting live in the identity service.
type Verifier struct {
	jwtConfig *JWTConfig
}

// NewVerifier creates a credential verifier.
func NewVerifier(jwtConfig *JWTConfig) *Verifier {
	return &Verifier{jwtConfig: jwtConfig}
}

// Verify validates a bearer token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidCredential
	}
	claims, err := ValidateToken(v.jwtConfig, token)
	if err != nil {
		return nil, errors.Join(ErrInvalidCredential, err)
	}
	return claims, nil
}
