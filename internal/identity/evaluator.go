// Package identity resolves the calling principal from request credentials.
// A caller presents a tenant ID, a user ID and an API key; the key is checked
// against the argon2id hash configured for that user.
package identity

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/tenant"
)

// Credentials are the raw values presented by a caller.
type Credentials struct {
	TenantID string
	UserID   string
	Key      string
}

// UserDirectory looks up API users. Unknown tenants and users must be
// reported with an error wrapping application.ErrNotFound.
type UserDirectory interface {
	User(ctx context.Context, tenantID, userID string) (tenant.UserRecord, error)
}

// Evaluator turns credentials into an application.Principal.
type Evaluator struct {
	users  UserDirectory
	now    func() time.Time
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	verified map[string]verifiedKey
}

type verifiedKey struct {
	digest  [sha256.Size]byte
	expires time.Time
}

// NewEvaluator builds an Evaluator. Successful verifications are remembered
// for ttl so repeated requests skip the argon2id derivation; a non-positive
// ttl disables that.
func NewEvaluator(users UserDirectory, ttl time.Duration, now func() time.Time, logger *slog.Logger) *Evaluator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		users:    users,
		now:      now,
		ttl:      ttl,
		logger:   logger.With("component", "identity"),
		verified: make(map[string]verifiedKey),
	}
}

// Authenticate verifies the credentials. Any credential problem is reported
// as application.ErrUnauthorized; lookup failures other than not-found are
// returned as they are.
func (e *Evaluator) Authenticate(ctx context.Context, creds Credentials) (application.Principal, error) {
	if e == nil || e.users == nil {
		return application.Principal{}, fmt.Errorf("identity evaluator is nil")
	}

	creds.TenantID = strings.TrimSpace(creds.TenantID)
	creds.UserID = strings.TrimSpace(creds.UserID)
	if creds.TenantID == "" || creds.UserID == "" || creds.Key == "" {
		return application.Principal{}, fmt.Errorf("missing credentials: %w", application.ErrUnauthorized)
	}

	user, err := e.users.User(ctx, creds.TenantID, creds.UserID)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) {
			e.logger.WarnContext(ctx, "unknown caller", "tenant_id", creds.TenantID, "user_id", creds.UserID)
			return application.Principal{}, fmt.Errorf("unknown caller: %w", application.ErrUnauthorized)
		}
		return application.Principal{}, fmt.Errorf("look up caller: %w", err)
	}

	if !e.recentlyVerified(creds, user.KeyHash) {
		if err := VerifyKey(user.KeyHash, creds.Key); err != nil {
			e.logger.WarnContext(ctx, "rejected API key", "tenant_id", creds.TenantID, "user_id", creds.UserID, "error", err)
			return application.Principal{}, fmt.Errorf("verify key: %w", application.ErrUnauthorized)
		}
		e.remember(creds, user.KeyHash)
	}

	return application.Principal{
		TenantID:   creds.TenantID,
		UserID:     user.ID,
		EmployeeID: user.EmployeeID,
		CanViewAll: user.CanViewAll,
		CanCreate:  user.CanCreate,
		CanConfirm: user.CanConfirm,
		CanCancel:  user.CanCancel,
		IsAdmin:    user.IsAdmin,
	}, nil
}

func cacheKey(creds Credentials) string {
	return creds.TenantID + "\x00" + creds.UserID
}

func digest(creds Credentials, keyHash string) [sha256.Size]byte {
	return sha256.Sum256([]byte(keyHash + "\x00" + creds.Key))
}

func (e *Evaluator) recentlyVerified(creds Credentials, keyHash string) bool {
	if e.ttl <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.verified[cacheKey(creds)]
	if !ok {
		return false
	}
	if !e.now().Before(entry.expires) {
		delete(e.verified, cacheKey(creds))
		return false
	}
	return entry.digest == digest(creds, keyHash)
}

func (e *Evaluator) remember(creds Credentials, keyHash string) {
	if e.ttl <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verified[cacheKey(creds)] = verifiedKey{digest: digest(creds, keyHash), expires: e.now().Add(e.ttl)}
}
