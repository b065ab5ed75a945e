package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

var (
	b64 = base64.RawURLEncoding

	errTokenFormat = errors.New("invalid token format")
)

// SignHS256 creates a compact JWT string using HS256.
func SignHS256(claims any, secret []byte) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	h, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(h) + "." + b64.EncodeToString(c)
	return unsigned + "." + b64.EncodeToString(mac(unsigned, secret)), nil
}

// ParseAndVerifyHS256 verifies the token signature and decodes its claims
// into dst.
func ParseAndVerifyHS256(token string, secret []byte, dst any) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return errTokenFormat
	}
	header, err := b64.DecodeString(parts[0])
	if err != nil {
		return errTokenFormat
	}
	var h struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(header, &h); err != nil || h.Alg != "HS256" {
		return errors.New("unsupported token algorithm")
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return errors.New("invalid signature encoding")
	}
	if !hmac.Equal(sig, mac(parts[0]+"."+parts[1], secret)) {
		return errors.New("signature mismatch")
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return errors.New("invalid payload encoding")
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return errors.New("invalid claims json")
	}
	return nil
}

func mac(unsigned string, secret []byte) []byte {
	m := hmac.New(sha256.New, secret)
	m.Write([]byte(unsigned))
	return m.Sum(nil)
}
