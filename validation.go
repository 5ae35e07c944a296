package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"github.com/giantswarm/oauth2-engine/scope"
	"github.com/giantswarm/oauth2-engine/storage"
)

// validatePKCE checks the code verifier presented at exchange time against
// the challenge bound to the authorization code (RFC 7636 Section 4.6). A
// grant issued without a challenge passes unconditionally.
func (e *Engine) validatePKCE(challenge, method, verifier string) error {
	if challenge == "" {
		return nil
	}

	if verifier == "" {
		return fmt.Errorf("code_verifier is required: the code was issued with a code_challenge")
	}

	// RFC 7636 Section 4.1: 43 to 128 characters from the unreserved set.
	if len(verifier) < MinCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at least %d characters", MinCodeVerifierLength)
	}
	if len(verifier) > MaxCodeVerifierLength {
		return fmt.Errorf("code_verifier must be at most %d characters", MaxCodeVerifierLength)
	}
	for _, ch := range verifier {
		isValid := (ch >= 'A' && ch <= 'Z') ||
			(ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') ||
			ch == '-' || ch == '.' || ch == '_' || ch == '~'
		if !isValid {
			return fmt.Errorf("code_verifier contains characters outside [A-Za-z0-9-._~]")
		}
	}

	var computed string
	switch method {
	case PKCEMethodS256:
		hash := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(hash[:])
	case PKCEMethodPlain:
		if !e.config.AllowPlainPKCE {
			return fmt.Errorf("code_challenge_method %q is not allowed", PKCEMethodPlain)
		}
		computed = verifier
	default:
		return fmt.Errorf("unsupported code_challenge_method: %q", method)
	}

	// SECURITY: constant-time comparison to prevent timing attacks.
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match code_challenge")
	}

	return nil
}

// validateChallenge checks the PKCE parameters of an authorization request.
// RequirePKCE binds public clients only; confidential clients may still opt
// in.
func (e *Engine) validateChallenge(client *storage.Client, challenge, method string) error {
	if challenge == "" {
		if e.config.RequirePKCE && client.IsPublic() {
			return fmt.Errorf("code_challenge is required for public clients")
		}
		return nil
	}

	switch method {
	case "":
		return fmt.Errorf("code_challenge_method is required when code_challenge is present")
	case PKCEMethodS256:
		return nil
	case PKCEMethodPlain:
		if !e.config.AllowPlainPKCE {
			return fmt.Errorf("code_challenge_method %q is not allowed, use %s", PKCEMethodPlain, PKCEMethodS256)
		}
		return nil
	default:
		return fmt.Errorf("unsupported code_challenge_method: %q", method)
	}
}

// resolveRedirectURI checks a requested redirect URI against the client's
// registered URIs by exact string comparison. An empty request resolves to
// the sole registered URI when the client has exactly one.
func resolveRedirectURI(client *storage.Client, redirectURI string) (string, error) {
	if redirectURI == "" {
		if len(client.RedirectURIs) == 1 {
			return client.RedirectURIs[0], nil
		}
		return "", fmt.Errorf("redirect_uri is required")
	}
	if !client.HasRedirectURI(redirectURI) {
		return "", fmt.Errorf("redirect_uri is not registered for this client")
	}
	return redirectURI, nil
}

// resolveScope resolves a requested wire-form scope against the client's
// registered scopes. An empty request resolves to the full registered set; a
// request exceeding it fails. Clients registered without scopes are
// unrestricted.
func (e *Engine) resolveScope(requested string, clientScopes []string) (scope.Set, error) {
	granted := e.policy.Resolve(scope.Parse(requested), clientScopes)
	if len(clientScopes) > 0 && !granted.IsSubset(scope.New(clientScopes...)) {
		return nil, fmt.Errorf("requested scope exceeds the scope registered for the client")
	}
	return granted, nil
}

// narrowScope resolves the scope for a refresh against the scope originally
// granted. Empty keeps the original; anything else must be a subset
// (RFC 6749 Section 6).
func narrowScope(requested, original string) (scope.Set, error) {
	originalSet := scope.Parse(original)
	if requested == "" {
		return originalSet, nil
	}
	requestedSet := scope.Parse(requested)
	if !requestedSet.IsSubset(originalSet) {
		return nil, fmt.Errorf("requested scope exceeds the originally granted scope")
	}
	return requestedSet, nil
}
