// Package statetoken implements the optional stateless-session variant
// of spec.md §6.2: a session's state serialized, base64-encoded, and
// HMAC-SHA256-signed into one portable token.
package statetoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/opentool-run/interact/session"
)

// Encode canonically serializes s, appends an HMAC-SHA256 signature
// over that serialization keyed by secret, and returns the result as a
// single base64url token ("<payload>.<signature>"). An empty secret
// disables signing: the returned token carries an empty signature
// segment.
func Encode(s *session.State, secret []byte) (string, error) {
	payload, err := canonicalize(s)
	if err != nil {
		return "", fmt.Errorf("statetoken: encode: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(payload)

	if len(secret) == 0 {
		return encodedPayload + ".", nil
	}
	sig := sign(payload, secret)
	return encodedPayload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// Decode reverses Encode, verifying the signature in constant time
// against secret. An empty secret disables verification (any signature,
// including none, is accepted). Invalid base64, invalid JSON, or a
// signature mismatch all fail.
func Decode(token string, secret []byte) (*session.State, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("statetoken: malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("statetoken: decode payload: %w", err)
	}

	if len(secret) > 0 {
		if parts[1] == "" {
			return nil, fmt.Errorf("statetoken: missing signature")
		}
		sig, err := base64.RawURLEncoding.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("statetoken: decode signature: %w", err)
		}
		want := sign(payload, secret)
		if !hmac.Equal(sig, want) {
			return nil, fmt.Errorf("statetoken: signature mismatch")
		}
	}

	s := &session.State{}
	if err := json.Unmarshal(payload, s); err != nil {
		return nil, fmt.Errorf("statetoken: decode state: %w", err)
	}
	if s.AccumulatedData == nil {
		s.AccumulatedData = map[string]json.RawMessage{}
	}
	return s, nil
}

func sign(payload, secret []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// canonicalize serializes s. encoding/json already sorts map keys and
// preserves declared struct field order, so this is deterministic:
// signing the same state twice always produces the same bytes.
func canonicalize(s *session.State) ([]byte, error) {
	return json.Marshal(s)
}
