// Package auth implements the dashboard's session authentication: bcrypt
// credential hashing, a signed session token, the cookie that carries it,
// and the middleware that turns a cookie back into a user.
//
// FLOW:
//  1. POST /login checks the password against the stored bcrypt digest
//  2. On success the SessionManager encodes the username into a signed token
//     and sets it as an HttpOnly cookie
//  3. On every request LoadUser decodes the cookie and looks the username up
//     in the user store; anything that fails along the way means "anonymous"
//
// TOKEN FORMAT:
// The token is a compact JWS (HEADER.PAYLOAD.SIGNATURE) signed with
// HMAC-SHA256. The payload holds only the username and a fixed issuer:
//
//	{"iss":"mediahub","sub":"alice"}
//
// There are no time claims. Lifetime is controlled by the cookie (session
// scoped, or 30 days with "remember me"), and leaving iat/exp out keeps
// Encode deterministic for a given secret. Rotating the secret invalidates
// every outstanding token.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "mediahub"

// ErrWeakSecret is returned when the signing secret is too short.
var ErrWeakSecret = errors.New("auth: signing secret must be at least 32 bytes")

// MinSecretBytes is the shortest HMAC key TokenCodec accepts.
const MinSecretBytes = 32

// TokenCodec signs usernames into session tokens and verifies them.
type TokenCodec struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenCodec creates a codec keyed by secret.
func NewTokenCodec(secret string) (*TokenCodec, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}

	// ALGORITHM PINNING:
	// WithValidMethods rejects "none" and any asymmetric algorithm, so a
	// token cannot pick how it is verified.
	//
	// STRICT DECODING:
	// The signature segment is 32 bytes, which base64 spreads over 43
	// characters with 2 spare bits. A lenient decoder ignores those bits,
	// so changing the final character can still verify. Strict decoding
	// requires them to be zero, which makes every single-byte edit fatal.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithStrictDecoding(),
	)

	return &TokenCodec{secret: []byte(secret), parser: parser}, nil
}

// Encode returns the signed token for username.
func (c *TokenCodec) Encode(username string) (string, error) {
	if username == "" {
		return "", errors.New("auth: cannot encode an empty username")
	}

	claims := jwt.RegisteredClaims{
		Issuer:  tokenIssuer,
		Subject: username,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Decode verifies token and returns the username it carries.
//
// Every failure (bad signature, wrong algorithm, malformed segments,
// missing subject) collapses into ok == false. Callers cannot tell a forged
// token from an absent one, and neither can a client probing the server.
func (c *TokenCodec) Decode(token string) (username string, ok bool) {
	if token == "" {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", false
	}

	if claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
