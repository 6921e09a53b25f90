package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// errInvalidSessionToken covers signature failures and malformed tokens.
	errInvalidSessionToken = errors.New("invalid session token")
	// errSessionTokenExpired signals an expiry in the past.
	errSessionTokenExpired = errors.New("session token expired")
)

// sessionToken is the claim a watcher presents to attach to a dialog's
// live stream: which session it may watch, and until when.
type sessionToken struct {
	SessionID string
	ExpiresAt time.Time
}

// sessionTokenVerifier validates compact HS256-signed tokens minted out of
// band by whatever started the dialog, so a browser tab can be handed a
// short-lived link to watch it without the gateway holding any session
// state of its own.
type sessionTokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func newSessionTokenVerifier(secret string) (*sessionTokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("session token secret must not be empty")
	}
	return &sessionTokenVerifier{secret: []byte(secret), now: time.Now}, nil
}

// verify parses token and validates its signature and expiry, returning the
// session it grants access to.
func (v *sessionTokenVerifier) verify(token string) (*sessionToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errInvalidSessionToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, errInvalidSessionToken
	}
	signingInput := parts[0] + "." + parts[1]

	headerBytes, err := decodeTokenSegment(parts[0])
	if err != nil {
		return nil, errInvalidSessionToken
	}
	var header struct {
		Algorithm string `json:"alg"`
	}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, errInvalidSessionToken
	}
	if header.Algorithm != "HS256" {
		return nil, fmt.Errorf("%w: unexpected algorithm %q", errInvalidSessionToken, header.Algorithm)
	}

	expectedSig := v.sign([]byte(signingInput))
	signatureBytes, err := decodeTokenSegment(parts[2])
	if err != nil {
		return nil, errInvalidSessionToken
	}
	if !hmac.Equal(signatureBytes, expectedSig) {
		return nil, errInvalidSessionToken
	}

	payloadBytes, err := decodeTokenSegment(parts[1])
	if err != nil {
		return nil, errInvalidSessionToken
	}
	var payload struct {
		SessionID string `json:"sid"`
		Expires   int64  `json:"exp"`
	}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, errInvalidSessionToken
	}
	if strings.TrimSpace(payload.SessionID) == "" {
		return nil, errInvalidSessionToken
	}
	if payload.Expires <= 0 {
		return nil, errInvalidSessionToken
	}

	expiresAt := time.Unix(payload.Expires, 0)
	if expiresAt.Before(v.now()) {
		return nil, errSessionTokenExpired
	}

	return &sessionToken{SessionID: payload.SessionID, ExpiresAt: expiresAt}, nil
}

func (v *sessionTokenVerifier) sign(signingInput []byte) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(signingInput)
	return mac.Sum(nil)
}

func decodeTokenSegment(segment string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(segment)
}
