package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/muurk/printhost/internal/settings"
)

const (
	// APIKeyHeader carries the caller's API key
	APIKeyHeader = "X-Api-Key"

	// APIKeyParam is the query parameter alternative to APIKeyHeader
	APIKeyParam = "apikey"

	// redactedKey replaces api.key in reads by non-admins
	redactedKey = "n/a"
)

// Role is what a caller may do
type Role int

const (
	RoleAnonymous Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "anonymous"
	}
}

// requestAPIKey returns the key presented by r, if any
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	return r.URL.Query().Get(APIKeyParam)
}

// RoleFor resolves the role of a caller presenting key
func RoleFor(r settings.Reader, key string) Role {
	if key == "" {
		return RoleAnonymous
	}

	if r.GetBoolean(settings.PathAPIEnabled) {
		if admin := r.GetString(settings.PathAPIKey); admin != "" && keysEqual(admin, key) {
			return RoleAdmin
		}
	}
	for _, user := range r.GetStringSlice(settings.PathUserKeys) {
		if user != "" && keysEqual(user, key) {
			return RoleUser
		}
	}
	return RoleAnonymous
}

func keysEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateAPIKey returns a new random key of 32 upper-case hex digits
func GenerateAPIKey() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}

// EnsureAPIKey stores a generated API key when none is configured. It
// returns the effective key and whether one was generated.
func EnsureAPIKey(ctx context.Context, s *settings.Settings) (string, bool, error) {
	var key string
	generated := false
	_, err := s.Transact(ctx, func(tx *settings.Tx) error {
		key = tx.GetString(settings.PathAPIKey)
		if key != "" {
			return nil
		}
		key = GenerateAPIKey()
		generated = true
		return tx.SetEncrypted(settings.PathAPIKey, key)
	})
	if err != nil {
		return "", false, err
	}
	return key, generated, nil
}
