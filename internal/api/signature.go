package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Slack request signing headers
const (
	HeaderTimestamp = "X-Slack-Request-Timestamp"
	HeaderSignature = "X-Slack-Signature"
)

const signatureVersion = "v0"

// ErrInvalidSignature is returned for requests that fail verification
var ErrInvalidSignature = errors.New("invalid request signature")

// Verifier checks Slack request signatures
type Verifier struct {
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewVerifier creates a verifier accepting timestamps within window of now
func NewVerifier(secret string, window time.Duration) *Verifier {
	if window <= 0 {
		window = 300 * time.Second
	}
	return &Verifier{secret: []byte(secret), window: window, now: time.Now}
}

// Sign computes the signature for body sent at timestamp
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s:", signatureVersion, timestamp)
	mac.Write(body)
	return signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature of body. An empty secret rejects everything.
func (v *Verifier) Verify(timestamp, signature string, body []byte) error {
	if len(v.secret) == 0 {
		return fmt.Errorf("%w: signing secret not configured", ErrInvalidSignature)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp %q", ErrInvalidSignature, timestamp)
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.window {
		return fmt.Errorf("%w: timestamp outside %s window", ErrInvalidSignature, v.window)
	}

	expected := Sign(string(v.secret), timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
