// Package tasks delivers side-effect messages to a worker endpoint over HTTP.
// Each delivery carries a short-lived signed identity token so the receiving
// handler can reject calls that did not originate from the service. Delivery
// is at-least-once; receivers must be idempotent.
package tasks

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/louisbranch/augurrank/internal/platform/errors"
)

const (
	tokenIssuer   = "augurrank"
	tokenLifetime = 5 * time.Minute

	deliveryTimeout = 10 * time.Second
	maxAttempts     = 3
)

// Dispatcher posts payloads to one worker endpoint.
type Dispatcher struct {
	endpoint   string
	key        ed25519.PrivateKey
	client     *http.Client
	clock      func() time.Time
	retryDelay time.Duration
}

// NewDispatcher constructs a dispatcher for the endpoint, signing delivery
// tokens with key. client may be nil.
func NewDispatcher(endpoint string, key ed25519.PrivateKey, client *http.Client) (*Dispatcher, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key is required")
	}
	if client == nil {
		client = &http.Client{Timeout: deliveryTimeout}
	}
	return &Dispatcher{
		endpoint:   endpoint,
		key:        key,
		client:     client,
		clock:      time.Now,
		retryDelay: backoff.DefaultInitialInterval,
	}, nil
}

// Enqueue delivers one payload, retrying transient failures with exponential
// backoff. A 4xx response is permanent; the receiver will never accept it.
func (d *Dispatcher) Enqueue(ctx context.Context, payload []byte) error {
	token, err := d.mintToken()
	if err != nil {
		return fmt.Errorf("mint delivery token: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(fmt.Errorf("endpoint rejected delivery: %s", resp.Status))
		default:
			return fmt.Errorf("endpoint unavailable: %s", resp.Status)
		}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.retryDelay
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx)
	return backoff.Retry(operation, policy)
}

func (d *Dispatcher) mintToken() (string, error) {
	now := d.clock().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Audience:  jwt.ClaimStrings{d.endpoint},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenLifetime)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(d.key)
}

// TokenVerifier validates delivery tokens on the receiving handler.
type TokenVerifier struct {
	pub      ed25519.PublicKey
	audience string
}

// NewTokenVerifier constructs a verifier for tokens signed with the private
// half of pub. A non-empty audience additionally requires tokens to be minted
// for that endpoint; empty skips the audience check.
func NewTokenVerifier(pub ed25519.PublicKey, audience string) (*TokenVerifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is required")
	}
	return &TokenVerifier{pub: pub, audience: audience}, nil
}

// Verify checks one bearer token string.
func (v *TokenVerifier) Verify(token string) error {
	if v == nil || token == "" {
		return apperrors.New(apperrors.CodeTaskTokenInvalid, "delivery token is missing")
	}
	opts := []jwt.ParserOption{jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired()}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.pub, nil
	}, opts...)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTaskTokenInvalid, "delivery token rejected", err)
	}
	if !parsed.Valid {
		return apperrors.New(apperrors.CodeTaskTokenInvalid, "delivery token rejected")
	}
	return nil
}
