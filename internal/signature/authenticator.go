package signature

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/operator-service/internal/apperrors"
)

// Authenticator checks that a request was signed by an allowed provider.
type Authenticator struct {
	required bool
	allowed  map[string]struct{}
}

// NewAuthenticator creates an Authenticator. When required is false the
// signer is still recovered but not checked against allowed.
func NewAuthenticator(required bool, allowed []string) *Authenticator {
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = struct{}{}
	}
	return &Authenticator{required: required, allowed: set}
}

// Verify recovers the signer of message+nonce and returns its address.
func (a *Authenticator) Verify(sig, message, nonce string) (string, error) {
	if sig == "" || message == "" {
		return "", apperrors.Validation("providerSignature", "`providerSignature` of agreementId is required.")
	}

	signed := message + nonce
	address, err := Recover(sig, signed)
	if err != nil {
		return "", apperrors.Authentication("Failed to recover address")
	}

	if a.required {
		if _, ok := a.allowed[strings.ToLower(address)]; !ok {
			return "", apperrors.Unauthorized(fmt.Sprintf(
				"Invalid signature %s of documentId %s,the signing ethereum account %s is not authorized to use this service.",
				sig, signed, address))
		}
	}
	return address, nil
}
