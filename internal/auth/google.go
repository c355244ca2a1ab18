package auth

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
)

// GoogleOAuthURL is the token exchange endpoint for service-account
// assertions.
const GoogleOAuthURL = "https://oauth2.googleapis.com/token"

const (
	googleScope     = "https://www.googleapis.com/auth/firebase.messaging"
	googleGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL    = time.Hour
)

// GoogleCredential holds a service account identity for the FCM v1 API.
type GoogleCredential struct {
	Issuer     string
	PrivateKey *rsa.PrivateKey
}

// ParseGoogleCredential builds a credential from the service account email and
// its PEM-encoded private key, failing fast on a malformed key.
func ParseGoogleCredential(iss string, privateKeyPEM []byte) (*GoogleCredential, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	return &GoogleCredential{Issuer: iss, PrivateKey: key}, nil
}

// GoogleFetch returns a FetchFunc that exchanges a signed RS256 assertion for
// a short-lived FCM bearer token.
func GoogleFetch(cred *GoogleCredential, client transport.Client) FetchFunc {
	return func(ctx context.Context) (string, time.Duration, error) {
		now := time.Now()

		claims := jwt.MapClaims{
			"iss":   cred.Issuer,
			"aud":   GoogleOAuthURL,
			"iat":   now.Unix(),
			"exp":   now.Add(assertionTTL).Unix(),
			"scope": googleScope,
		}

		assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(cred.PrivateKey)
		if err != nil {
			return "", 0, fmt.Errorf("sign assertion: %w", err)
		}

		body, err := json.Marshal(map[string]string{
			"grant_type": googleGrantType,
			"assertion":  assertion,
		})
		if err != nil {
			return "", 0, err
		}

		headers := map[string]string{"Content-Type": "application/json"}

		reply, err := client.Do(ctx, http.MethodPost, GoogleOAuthURL, headers, body, transport.Options{})
		if err != nil {
			return "", 0, err
		}

		return parseTokenReply(reply.Body)
	}
}

func parseTokenReply(body []byte) (string, time.Duration, error) {
	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", 0, errors.New("no access token in the response body")
	}

	ttl := time.Duration(parsed.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = assertionTTL
	}
	return parsed.AccessToken, ttl, nil
}
