// Package security authenticates trigger requests with a shared secret.
package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Authorization failures
var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrNoSecret     = errors.New("no trigger secret configured")
)

// Authorizer checks the Authorization: Bearer <secret> header of trigger requests
type Authorizer struct {
	digest   [sha256.Size]byte
	hasToken bool
	skip     bool
}

// NewAuthorizer creates an Authorizer. With skip set every request passes;
// with an empty secret every request is denied.
func NewAuthorizer(secret string, skip bool) *Authorizer {
	a := &Authorizer{skip: skip}
	if secret != "" {
		a.digest = sha256.Sum256([]byte(secret))
		a.hasToken = true
	}
	if skip {
		logrus.Warn("Trigger authentication disabled (SKIP_AUTH)")
	}
	return a
}

// Check validates the request credentials
func (a *Authorizer) Check(r *http.Request) error {
	if a.skip {
		return nil
	}
	if !a.hasToken {
		return ErrNoSecret
	}

	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return ErrMissingToken
	}

	// Digests have equal length, so the comparison time does not depend on the token
	got := sha256.Sum256([]byte(token))
	if subtle.ConstantTimeCompare(got[:], a.digest[:]) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// Middleware rejects unauthorized requests with 401
func (a *Authorizer) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Check(r); err != nil {
			logrus.WithFields(logrus.Fields{
				"path":   r.URL.Path,
				"remote": r.RemoteAddr,
			}).Warnf("Unauthorized trigger: %v", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
