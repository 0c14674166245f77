package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/appointment-scheduler/internal/application"
	"github.com/example/appointment-scheduler/internal/tenant"
)

var fastParams = HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}

func TestHashAndVerifyKey(t *testing.T) {
	t.Parallel()

	hash, err := HashKey("s3cret", fastParams)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	if err := VerifyKey(hash, "s3cret"); err != nil {
		t.Fatalf("expected key to verify, got %v", err)
	}
	if err := VerifyKey(hash, "wrong"); !errors.Is(err, ErrKeyMismatch) {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}

	other, _ := HashKey("s3cret", fastParams)
	if other == hash {
		t.Fatal("expected a fresh salt per hash")
	}
}

func TestVerifyKeyRejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		hash string
		want error
	}{
		{"plain", ErrInvalidKeyHash},
		{"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", ErrInvalidKeyHash},
		{"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA", ErrIncompatibleKeyVersion},
		{"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$aGFzaA", ErrInvalidKeyHash},
		{"$argon2id$v=19$m=1024,t=1,p=1$!!$aGFzaA", ErrInvalidKeyHash},
	}
	for _, tc := range cases {
		if err := VerifyKey(tc.hash, "key"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.hash, tc.want, err)
		}
	}
}

type stubDirectory struct {
	users map[string]tenant.UserRecord
	err   error
	calls int
}

func (s *stubDirectory) User(ctx context.Context, tenantID, userID string) (tenant.UserRecord, error) {
	s.calls++
	if s.err != nil {
		return tenant.UserRecord{}, s.err
	}
	u, ok := s.users[tenantID+"/"+userID]
	if !ok {
		return tenant.UserRecord{}, application.ErrNotFound
	}
	return u, nil
}

func newDirectory(t *testing.T) *stubDirectory {
	t.Helper()
	hash, err := HashKey("desk-key", fastParams)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}
	return &stubDirectory{users: map[string]tenant.UserRecord{
		"salon-1/desk": {ID: "desk", KeyHash: hash, EmployeeID: "emp-1", CanCreate: true, CanCancel: true},
	}}
}

func TestEvaluatorAuthenticate(t *testing.T) {
	t.Parallel()

	dir := newDirectory(t)
	e := NewEvaluator(dir, 0, nil, nil)

	p, err := e.Authenticate(context.Background(), Credentials{TenantID: " salon-1 ", UserID: "desk", Key: "desk-key"})
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	want := application.Principal{TenantID: "salon-1", UserID: "desk", EmployeeID: "emp-1", CanCreate: true, CanCancel: true}
	if p != want {
		t.Fatalf("expected %+v, got %+v", want, p)
	}

	rejected := []Credentials{
		{},
		{TenantID: "salon-1", UserID: "desk"},
		{TenantID: "salon-1", UserID: "desk", Key: "nope"},
		{TenantID: "salon-1", UserID: "ghost", Key: "desk-key"},
		{TenantID: "salon-2", UserID: "desk", Key: "desk-key"},
	}
	for _, creds := range rejected {
		if _, err := e.Authenticate(context.Background(), creds); !errors.Is(err, application.ErrUnauthorized) {
			t.Fatalf("%+v: expected ErrUnauthorized, got %v", creds, err)
		}
	}
}

func TestEvaluatorPropagatesLookupFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	e := NewEvaluator(&stubDirectory{err: boom}, 0, nil, nil)
	_, err := e.Authenticate(context.Background(), Credentials{TenantID: "t", UserID: "u", Key: "k"})
	if !errors.Is(err, boom) || errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected lookup failure, got %v", err)
	}
}

func TestEvaluatorRemembersVerifiedKeys(t *testing.T) {
	t.Parallel()

	dir := newDirectory(t)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	e := NewEvaluator(dir, time.Minute, func() time.Time { return now }, nil)
	creds := Credentials{TenantID: "salon-1", UserID: "desk", Key: "desk-key"}

	if _, err := e.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("first Authenticate failed: %v", err)
	}
	if len(e.verified) != 1 {
		t.Fatalf("expected verification to be remembered, got %d entries", len(e.verified))
	}

	wrong := creds
	wrong.Key = "guess"
	if _, err := e.Authenticate(context.Background(), wrong); !errors.Is(err, application.ErrUnauthorized) {
		t.Fatalf("expected a different key to be rejected, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if e.recentlyVerified(creds, dir.users["salon-1/desk"].KeyHash) {
		t.Fatal("expected remembered verification to expire")
	}
}
