package token

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/innovatewithkishlay/justlputhings/internal/model"
	"github.com/innovatewithkishlay/justlputhings/internal/repository"
)

// ----- mocks -----

type mockUserStore struct {
	createFn           func(ctx context.Context, email, passwordHash, role string) (uint64, error)
	createWithGoogleFn func(ctx context.Context, email, googleID, role string) (uint64, error)
	linkGoogleFn       func(ctx context.Context, userID uint64, googleID string) error
	getByEmailFn       func(ctx context.Context, email string) (model.User, error)
	getByIDFn          func(ctx context.Context, id uint64) (model.User, error)
	getByGoogleIDFn    func(ctx context.Context, googleID string) (model.User, error)
}

func (m *mockUserStore) Create(ctx context.Context, email, passwordHash, role string) (uint64, error) {
	if m.createFn != nil {
		return m.createFn(ctx, email, passwordHash, role)
	}
	return 1, nil
}

func (m *mockUserStore) CreateWithGoogle(ctx context.Context, email, googleID, role string) (uint64, error) {
	if m.createWithGoogleFn != nil {
		return m.createWithGoogleFn(ctx, email, googleID, role)
	}
	return 1, nil
}

func (m *mockUserStore) LinkGoogle(ctx context.Context, userID uint64, googleID string) error {
	if m.linkGoogleFn != nil {
		return m.linkGoogleFn(ctx, userID, googleID)
	}
	return nil
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	if m.getByEmailFn != nil {
		return m.getByEmailFn(ctx, email)
	}
	return model.User{}, repository.ErrNotFound
}

func (m *mockUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return model.User{ID: id, Role: model.RoleUser}, nil
}

func (m *mockUserStore) GetByGoogleID(ctx context.Context, googleID string) (model.User, error) {
	if m.getByGoogleIDFn != nil {
		return m.getByGoogleIDFn(ctx, googleID)
	}
	return model.User{}, repository.ErrNotFound
}

// memTokenStore is an in-memory TokenStore with the same conditional
// revoke semantics as the SQL repository.
type memTokenStore struct {
	mu      sync.Mutex
	records map[string]*model.RefreshToken

	revokeAllCalls int
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{records: make(map[string]*model.RefreshToken)}
}

func (s *memTokenStore) Store(_ context.Context, familyID string, userID uint64, tokenHash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[familyID] = &model.RefreshToken{
		ID: familyID, UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *memTokenStore) Get(_ context.Context, familyID string) (model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[familyID]
	if !ok {
		return model.RefreshToken{}, repository.ErrNotFound
	}
	return *rec, nil
}

func (s *memTokenStore) Revoke(_ context.Context, familyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[familyID]
	if !ok {
		return repository.ErrNotFound
	}
	if rec.RevokedAt != nil {
		return repository.ErrAlreadyRevoked
	}
	now := time.Now().UTC()
	rec.RevokedAt = &now
	return nil
}

func (s *memTokenStore) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllCalls++
	now := time.Now().UTC()
	for _, rec := range s.records {
		if rec.UserID == userID && rec.RevokedAt == nil {
			rec.RevokedAt = &now
		}
	}
	return nil
}

func (s *memTokenStore) liveCount(userID uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if rec.UserID == userID && rec.RevokedAt == nil {
			n++
		}
	}
	return n
}

// memDenylist records Add calls with their TTLs.
type memDenylist struct {
	mu      sync.Mutex
	entries map[string]time.Duration
}

func newMemDenylist() *memDenylist {
	return &memDenylist{entries: make(map[string]time.Duration)}
}

func (d *memDenylist) Add(_ context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[jti] = ttl
	return nil
}

func (d *memDenylist) Revoked(_ context.Context, jti string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[jti]
	return ok
}

func newTestService(users UserStore, tokens TokenStore, denylist Denylist) *Service {
	if users == nil {
		users = &mockUserStore{}
	}
	if denylist == nil {
		denylist = newMemDenylist()
	}
	return NewService(testSecret, 15*time.Minute, 7*24*time.Hour, 4, users, tokens, denylist, zerolog.Nop())
}

// ----- tests -----

func TestIssueStoresHashedSecretOnly(t *testing.T) {
	store := newMemTokenStore()
	svc := newTestService(nil, store, nil)

	pair, err := svc.Issue(context.Background(), 9, model.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rec, err := store.Get(context.Background(), pair.FamilyID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	_, secret, ok := splitRefresh(pair.RefreshRaw)
	if !ok {
		t.Fatalf("refresh raw %q not splittable", pair.RefreshRaw)
	}
	if rec.TokenHash == secret {
		t.Fatal("raw secret stored verbatim")
	}
	if rec.TokenHash != HashRefreshSecret(secret) {
		t.Fatal("stored hash does not match secret hash")
	}
}

func TestRefreshRotates(t *testing.T) {
	store := newMemTokenStore()
	svc := newTestService(nil, store, nil)
	ctx := context.Background()

	pair, err := svc.Issue(ctx, 9, model.RoleUser)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	next, err := svc.Refresh(ctx, pair.RefreshRaw)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.FamilyID == pair.FamilyID {
		t.Fatal("rotation did not mint a new family id")
	}
	old, _ := store.Get(ctx, pair.FamilyID)
	if old.RevokedAt == nil {
		t.Fatal("presented family not revoked after rotation")
	}
	// the new token must itself be refreshable
	if _, err := svc.Refresh(ctx, next.RefreshRaw); err != nil {
		t.Fatalf("second rotation: %v", err)
	}
}

func TestRefreshReuseRevokesAllSessions(t *testing.T) {
	store := newMemTokenStore()
	svc := newTestService(nil, store, nil)
	ctx := context.Background()

	// two live sessions for the same user
	a, _ := svc.Issue(ctx, 9, model.RoleUser)
	b, _ := svc.Issue(ctx, 9, model.RoleUser)

	if _, err := svc.Refresh(ctx, a.RefreshRaw); err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	// replaying the consumed token is the attack
	if _, err := svc.Refresh(ctx, a.RefreshRaw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("reuse returned %v, want ErrUnauthorized", err)
	}
	if store.revokeAllCalls == 0 {
		t.Fatal("reuse did not trigger revoke-all")
	}
	// the previously valid sibling session must now be dead too
	if _, err := svc.Refresh(ctx, b.RefreshRaw); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("sibling session survived theft containment: %v", err)
	}
	if n := store.liveCount(9); n != 0 {
		t.Fatalf("%d live families remain after containment", n)
	}
}

func TestConcurrentRefreshExactlyOneWins(t *testing.T) {
	store := newMemTokenStore()
	svc := newTestService(nil, store, nil)
	ctx := context.Background()

	pair, _ := svc.Issue(ctx, 9, model.RoleUser)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, pair.RefreshRaw)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d concurrent refreshes succeeded, want exactly 1", wins)
	}
}

func TestRefreshFailureModes(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		prepare func(t *testing.T, svc *Service, store *memTokenStore) string
		wantErr error
	}{
		{
			name: "malformed token",
			prepare: func(t *testing.T, svc *Service, store *memTokenStore) string {
				return "no-dot-here"
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "unknown family id",
			prepare: func(t *testing.T, svc *Service, store *memTokenStore) string {
				return "missing-family.deadbeef"
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "wrong secret",
			prepare: func(t *testing.T, svc *Service, store *memTokenStore) string {
				pair, err := svc.Issue(ctx, 9, model.RoleUser)
				if err != nil {
					t.Fatalf("Issue: %v", err)
				}
				return pair.FamilyID + ".0000000000"
			},
			wantErr: ErrUnauthorized,
		},
		{
			name: "expired record",
			prepare: func(t *testing.T, svc *Service, store *memTokenStore) string {
				secret, _ := NewRefreshSecret()
				_ = store.Store(ctx, "fam-expired", 9, HashRefreshSecret(secret), time.Now().UTC().Add(-time.Hour))
				return "fam-expired." + secret
			},
			wantErr: ErrUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemTokenStore()
			svc := newTestService(nil, store, nil)
			raw := tt.prepare(t, svc, store)
			if _, err := svc.Refresh(ctx, raw); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Refresh = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRefreshBlockedUser(t *testing.T) {
	store := newMemTokenStore()
	users := &mockUserStore{
		getByIDFn: func(_ context.Context, id uint64) (model.User, error) {
			return model.User{ID: id, Role: model.RoleUser, IsBlocked: true}, nil
		},
	}
	svc := newTestService(users, store, nil)
	ctx := context.Background()

	pair, _ := svc.Issue(ctx, 9, model.RoleUser)
	if _, err := svc.Refresh(ctx, pair.RefreshRaw); !errors.Is(err, ErrForbidden) {
		t.Fatalf("Refresh for blocked user = %v, want ErrForbidden", err)
	}
}

func TestLogin(t *testing.T) {
	hash, err := HashPassword("hunter22", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	stored := model.User{
		ID:           5,
		Email:        "a@b.edu",
		PasswordHash: sql.NullString{String: hash, Valid: true},
		Role:         model.RoleUser,
	}
	tests := []struct {
		name         string
		user         model.User
		userErr      error
		password     string
		expectedRole string
		wantErr      error
	}{
		{name: "ok", user: stored, password: "hunter22"},
		{name: "ok with role assertion", user: stored, password: "hunter22", expectedRole: model.RoleUser},
		{name: "wrong password", user: stored, password: "nope", wantErr: ErrUnauthorized},
		{name: "unknown email", userErr: repository.ErrNotFound, password: "hunter22", wantErr: ErrUnauthorized},
		{name: "role mismatch", user: stored, password: "hunter22", expectedRole: model.RoleAdmin, wantErr: ErrRoleMismatch},
		{
			name: "blocked",
			user: func() model.User { u := stored; u.IsBlocked = true; return u }(),
			password: "hunter22", wantErr: ErrForbidden,
		},
		{
			name: "google-only account has no password path",
			user: func() model.User { u := stored; u.PasswordHash = sql.NullString{}; return u }(),
			password: "hunter22", wantErr: ErrUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := &mockUserStore{
				getByEmailFn: func(context.Context, string) (model.User, error) {
					if tt.userErr != nil {
						return model.User{}, tt.userErr
					}
					return tt.user, nil
				},
			}
			svc := newTestService(users, newMemTokenStore(), nil)
			pair, err := svc.Login(context.Background(), "a@b.edu", tt.password, tt.expectedRole)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Login = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login: %v", err)
			}
			if pair.UserID != 5 || pair.Access.Token == "" || pair.RefreshRaw == "" {
				t.Fatalf("incomplete pair: %+v", pair)
			}
		})
	}
}

func TestLoginWithGoogle(t *testing.T) {
	t.Run("existing linked account", func(t *testing.T) {
		users := &mockUserStore{
			getByGoogleIDFn: func(context.Context, string) (model.User, error) {
				return model.User{ID: 3, Role: model.RoleUser}, nil
			},
		}
		svc := newTestService(users, newMemTokenStore(), nil)
		pair, err := svc.LoginWithGoogle(context.Background(), "g-123", "x@y.edu")
		if err != nil {
			t.Fatalf("LoginWithGoogle: %v", err)
		}
		if pair.UserID != 3 {
			t.Fatalf("UserID = %d, want 3", pair.UserID)
		}
	})

	t.Run("links by email", func(t *testing.T) {
		linked := false
		users := &mockUserStore{
			getByEmailFn: func(context.Context, string) (model.User, error) {
				return model.User{ID: 4, Role: model.RoleUser}, nil
			},
			linkGoogleFn: func(_ context.Context, userID uint64, googleID string) error {
				if userID != 4 || googleID != "g-123" {
					t.Errorf("LinkGoogle(%d, %q)", userID, googleID)
				}
				linked = true
				return nil
			},
		}
		svc := newTestService(users, newMemTokenStore(), nil)
		if _, err := svc.LoginWithGoogle(context.Background(), "g-123", "x@y.edu"); err != nil {
			t.Fatalf("LoginWithGoogle: %v", err)
		}
		if !linked {
			t.Fatal("existing account was not linked")
		}
	})

	t.Run("creates new user", func(t *testing.T) {
		created := false
		users := &mockUserStore{
			createWithGoogleFn: func(_ context.Context, email, googleID, role string) (uint64, error) {
				created = true
				if role != model.RoleUser {
					t.Errorf("role = %q, want USER", role)
				}
				return 10, nil
			},
		}
		svc := newTestService(users, newMemTokenStore(), nil)
		pair, err := svc.LoginWithGoogle(context.Background(), "g-999", "new@y.edu")
		if err != nil {
			t.Fatalf("LoginWithGoogle: %v", err)
		}
		if !created || pair.UserID != 10 {
			t.Fatalf("created=%v pair=%+v", created, pair)
		}
	})
}

func TestLogoutDenylistsRemainingValidity(t *testing.T) {
	store := newMemTokenStore()
	denylist := newMemDenylist()
	svc := newTestService(nil, store, denylist)
	ctx := context.Background()

	pair, _ := svc.Issue(ctx, 9, model.RoleUser)
	if err := svc.Logout(ctx, pair.Access.Token, pair.FamilyID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	ttl, ok := denylist.entries[pair.Access.JTI]
	if !ok {
		t.Fatal("jti not denylisted")
	}
	// Denylist lifetime is bounded by the token's remaining validity, so
	// storage cannot grow past the access TTL.
	if ttl <= 0 || ttl > 15*time.Minute {
		t.Fatalf("denylist ttl = %v, want (0, 15m]", ttl)
	}
	if rec, _ := store.Get(ctx, pair.FamilyID); rec.RevokedAt == nil {
		t.Fatal("refresh family not revoked at logout")
	}
	if !svc.Revoked(ctx, pair.Access.JTI) {
		t.Fatal("Revoked() does not see the denylisted jti")
	}
}

func TestLogoutExpiredAccessTokenSkipsDenylist(t *testing.T) {
	store := newMemTokenStore()
	denylist := newMemDenylist()
	svc := newTestService(nil, store, denylist)
	ctx := context.Background()

	pair, _ := svc.Issue(ctx, 9, model.RoleUser)
	expired, err := NewAccessToken(testSecret, 9, model.RoleUser, -time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	if err := svc.Logout(ctx, expired.Token, pair.FamilyID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if len(denylist.entries) != 0 {
		t.Fatal("expired token needs no denylist entry")
	}
	if rec, _ := store.Get(ctx, pair.FamilyID); rec.RevokedAt == nil {
		t.Fatal("family must still be revoked for an expired access token")
	}
	// idempotent: a second logout of the same family is not an error
	if err := svc.Logout(ctx, expired.Token, pair.FamilyID); err != nil {
		t.Fatalf("repeated Logout: %v", err)
	}
}
