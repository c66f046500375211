package gmo

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ErrMissingCredentials is returned when a private call is attempted without an API key/secret.
var ErrMissingCredentials = errors.New("gmo: API key/secret required")

// Credentials hold the API key pair. Loaded once at startup.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Signer computes request signatures for the private API.
type Signer struct {
	apiKey string
	secret []byte
}

// NewSigner validates the credentials and builds a Signer.
func NewSigner(creds Credentials) (*Signer, error) {
	if creds.APIKey == "" || creds.APISecret == "" {
		return nil, ErrMissingCredentials
	}
	return &Signer{
		apiKey: creds.APIKey,
		secret: []byte(creds.APISecret),
	}, nil
}

// Sign returns hex(HMAC-SHA256(secret, timestamp + method + path + body)).
// path excludes the query string; body is empty for GET.
func (s *Signer) Sign(timestamp, method, path, body string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(timestamp + method + path + body))
	return hex.EncodeToString(mac.Sum(nil))
}

// Headers returns the authentication headers for a private request.
func (s *Signer) Headers(timestamp, method, path, body string) map[string]string {
	return map[string]string{
		"API-KEY":       s.apiKey,
		"API-TIMESTAMP": timestamp,
		"API-SIGN":      s.Sign(timestamp, method, path, body),
	}
}

// Timestamp renders t as whole seconds expressed in milliseconds.
func Timestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10) + "000"
}
