package security

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/masakoww/jambistore-app-sub000/configs"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// Verifier checks a webhook body against the signature taken from its header.
type Verifier interface {
	Verify(payload []byte, signature string) error
}

// HMACVerifier expects hex or base64 HMAC-SHA256 of the raw body.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

func (v *HMACVerifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (v *HMACVerifier) Verify(payload []byte, signature string) error {
	got, err := decodeSignature(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return err
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrBadSignature
	}
	return nil
}

// RSAVerifier expects a base64 RSA-SHA256 (PKCS#1 v1.5) signature of the raw body.
type RSAVerifier struct {
	pub  *rsa.PublicKey
	priv *rsa.PrivateKey // optional; only needed to sign
}

func NewRSAVerifier(pub *rsa.PublicKey, priv *rsa.PrivateKey) *RSAVerifier {
	return &RSAVerifier{pub: pub, priv: priv}
}

func (v *RSAVerifier) Sign(payload []byte) (string, error) {
	if v.priv == nil {
		return "", errors.New("signing not configured (no RSA private key)")
	}
	sum := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, v.priv, crypto.SHA256, sum[:])
	if err != nil {
		return "", fmt.Errorf("rsa sign: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (v *RSAVerifier) Verify(payload []byte, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: bad encoding", ErrBadSignature)
	}
	sum := sha256.Sum256(payload)
	if err := rsa.VerifyPKCS1v15(v.pub, crypto.SHA256, sum[:], sig); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// WebhookKey pairs a verifier with the header that carries the signature.
type WebhookKey struct {
	Header   string
	Verifier Verifier
}

// NewWebhookKeys builds verifiers for every configured gateway.
func NewWebhookKeys(cfgs map[string]configs.WebhookConfig) (map[string]WebhookKey, error) {
	out := make(map[string]WebhookKey, len(cfgs))
	for name, c := range cfgs {
		header := c.Header
		if header == "" {
			header = "X-Signature"
		}
		var v Verifier
		switch c.Scheme {
		case "hmac-sha256":
			v = NewHMACVerifier(c.Secret)
		case "rsa-sha256":
			pub, err := ParseRSAPublicKeyPEM([]byte(c.PublicKeyPEM))
			if err != nil {
				return nil, fmt.Errorf("webhook %s public key: %w", name, err)
			}
			v = NewRSAVerifier(pub, nil)
		default:
			return nil, fmt.Errorf("webhook %s: unknown scheme %q", name, c.Scheme)
		}
		out[strings.ToLower(name)] = WebhookKey{Header: header, Verifier: v}
	}
	return out, nil
}

func decodeSignature(s string) ([]byte, error) {
	if b, err := hex.DecodeString(s); err == nil {
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return nil, fmt.Errorf("%w: bad encoding", ErrBadSignature)
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
