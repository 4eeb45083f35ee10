package trust

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/leo2971998/trustagent/pkg/ap2"
	"github.com/leo2971998/trustagent/pkg/canonjson"
)

const proofAlgorithm = "hmac-sha256"

// Signer issues and verifies mandate proofs. The signing key is derived per
// user from the service secret, so a proof never verifies under a different
// user's identity.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// signedTimestamp formats created_at for the signed message. Truncated to
// microseconds because timestamptz keeps no finer precision: the value read
// back from Postgres must reproduce the signed bytes exactly.
func signedTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano)
}

// Sign attaches a proof over the mandate's immutable creation fields. The
// signed payload is the canonical JSON of id, kind, user_id, payload,
// created_at and a fresh nonce; status and trust metadata are deliberately
// excluded since they change after creation.
func (s *Signer) Sign(m ap2.Mandate) (ap2.Proof, error) {
	nonce := NewNonce()
	sig, err := s.signature(m, nonce)
	if err != nil {
		return ap2.Proof{}, err
	}
	return ap2.Proof{
		Signature:     sig,
		PublicKeyHash: s.keyHash(m.UserID),
		Timestamp:     signedTimestamp(m.CreatedAt),
		Nonce:         nonce,
		Algorithm:     proofAlgorithm,
	}, nil
}

// Verify reports whether the mandate's proof matches its immutable fields.
// A missing proof, a foreign algorithm, or any field tamper fails.
func (s *Signer) Verify(m ap2.Mandate) bool {
	if m.Proof == nil || m.Proof.Algorithm != proofAlgorithm {
		return false
	}
	want, err := s.signature(m, m.Proof.Nonce)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(m.Proof.Signature))
}

func (s *Signer) signature(m ap2.Mandate, nonce string) (string, error) {
	payload := map[string]any{
		"id":         m.ID,
		"kind":       string(m.Kind),
		"user_id":    m.UserID,
		"payload":    m.Payload,
		"created_at": signedTimestamp(m.CreatedAt),
		"nonce":      nonce,
	}
	message, err := canonjson.Marshal(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.userKey(m.UserID))
	_, _ = mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *Signer) userKey(userID string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(userID))
	return mac.Sum(nil)
}

func (s *Signer) keyHash(userID string) string {
	sum := sha256.Sum256(s.userKey(userID))
	return hex.EncodeToString(sum[:])[:32]
}

// NewNonce returns 32 random bytes hex-encoded.
func NewNonce() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
