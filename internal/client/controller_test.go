package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/isdelr/goals-be/internal/api"
	"github.com/isdelr/goals-be/internal/auth"
	"github.com/isdelr/goals-be/internal/database/dbtest"
	"github.com/isdelr/goals-be/internal/models"
	"github.com/isdelr/goals-be/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// newServer runs the real API on a throwaway database.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	db := dbtest.Open(t)
	hasher, err := auth.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenService("client-test-secret", time.Hour)
	require.NoError(t, err)

	events := services.NewEventService(db)
	srv := httptest.NewServer(api.NewRouter(api.Deps{
		Users:  services.NewUserService(db, hasher, events),
		Goals:  services.NewGoalService(db, events),
		Events: events,
		Tokens: tokens,
		DB:     db,
	}))
	t.Cleanup(srv.Close)
	return srv
}

type recorder struct {
	mu     sync.Mutex
	paths  []string
	states []State
}

func (r *recorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) listen(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) lastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.paths) == 0 {
		return ""
	}
	return r.paths[len(r.paths)-1]
}

func newController(t *testing.T, baseURL string, store Store) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewController(baseURL, store, WithNavigator(rec))
	c.Subscribe(rec.listen)
	return c, rec
}

var alice = models.RegisterInput{Username: "alice", Name: "Alice", Email: "a@x.com", Password: "secret1"}

func TestRegisterLogsIn(t *testing.T) {
	srv := newServer(t)
	store := &MemoryStore{}
	c, rec := newController(t, srv.URL, store)
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, alice))

	state := c.State()
	assert.True(t, state.Authenticated)
	assert.Equal(t, "alice", state.User.Username)
	assert.Equal(t, PathDashboard, rec.lastPath())
	require.Len(t, rec.states, 1)
	assert.True(t, rec.states[0].Authenticated)

	stored, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.Token(), stored.Token)
	if diff := cmp.Diff(state.User, stored.Profile); diff != "" {
		t.Errorf("stored profile mismatch (-state +stored):\n%s", diff)
	}
}

func TestRegisterSurfacesValidation(t *testing.T) {
	srv := newServer(t)
	c, _ := newController(t, srv.URL, &MemoryStore{})
	ctx := context.Background()

	require.NoError(t, c.Register(ctx, alice))
	c.Logout()

	err := c.Register(ctx, alice)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)
	assert.False(t, c.State().Authenticated)
}

func TestLogin(t *testing.T) {
	srv := newServer(t)
	seed, _ := newController(t, srv.URL, &MemoryStore{})
	require.NoError(t, seed.Register(context.Background(), alice))

	store := &MemoryStore{}
	c, rec := newController(t, srv.URL, store)

	err := c.Login(context.Background(), "a@x.com", "wrong")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.False(t, c.State().Authenticated)
	assert.Empty(t, rec.paths)

	err = c.Login(context.Background(), "nobody@x.com", "secret1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	require.NoError(t, c.Login(context.Background(), "a@x.com", "secret1"))
	assert.True(t, c.State().Authenticated)
	assert.Equal(t, PathDashboard, rec.lastPath())
	_, ok, _ := store.Load()
	assert.True(t, ok)
}

func TestLogoutClearsEverything(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	c, rec := newController(t, srv.URL, NewFileStore(dir))
	require.NoError(t, c.Register(context.Background(), alice))

	c.Logout()

	assert.False(t, c.State().Authenticated)
	assert.Empty(t, c.Token())
	assert.Equal(t, PathLanding, rec.lastPath())
	_, ok, err := NewFileStore(dir).Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, rec.states[len(rec.states)-1].Authenticated)
}

func TestRehydrate(t *testing.T) {
	srv := newServer(t)
	dir := t.TempDir()
	first, _ := newController(t, srv.URL, NewFileStore(dir))
	require.NoError(t, first.Register(context.Background(), alice))

	// A new process starts with the persisted session and no network call.
	second, _ := newController(t, "http://127.0.0.1:0", NewFileStore(dir))
	require.NoError(t, second.Rehydrate())
	assert.True(t, second.State().Authenticated)
	assert.Equal(t, first.Token(), second.Token())

	empty, _ := newController(t, srv.URL, NewFileStore(t.TempDir()))
	require.NoError(t, empty.Rehydrate())
	assert.False(t, empty.State().Authenticated)
}

func TestRejectedTokenForcesLogout(t *testing.T) {
	srv := newServer(t)
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{Profile: Profile{ID: "ghost"}, Token: "forged.token.value"}))

	c, rec := newController(t, srv.URL, store)
	require.NoError(t, c.Rehydrate())
	require.True(t, c.State().Authenticated)

	_, err := NewGoals(c).List(context.Background(), models.GoalFilter{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.False(t, c.State().Authenticated)
	assert.Equal(t, PathLanding, rec.lastPath())
	_, ok, _ := store.Load()
	assert.False(t, ok)
}

// heldServer answers path only after release is closed, with status and
// body. Login always succeeds with token.
func heldServer(t *testing.T, path string, status int, body, token string) (srv *httptest.Server, entered, release chan struct{}) {
	t.Helper()
	entered = make(chan struct{})
	release = make(chan struct{})
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/users/login":
			w.Write([]byte(`{"message":"ok","user":{"id":"u1","username":"alice","email":"a@x.com","token":"` + token + `"}}`))
		case path:
			close(entered)
			<-release
			w.WriteHeader(status)
			w.Write([]byte(body))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, entered, release
}

func TestStaleRejectionKeepsNewSession(t *testing.T) {
	srv, entered, release := heldServer(t, "/api/goals", http.StatusUnauthorized, `{"message":"Token inválido."}`, "token-2")
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{Profile: Profile{ID: "u1"}, Token: "token-1"}))

	c, _ := newController(t, srv.URL, store)
	require.NoError(t, c.Rehydrate())

	done := make(chan error, 1)
	go func() {
		_, err := NewGoals(c).List(context.Background(), models.GoalFilter{})
		done <- err
	}()
	<-entered

	require.NoError(t, c.Login(context.Background(), "a@x.com", "secret1"))
	close(release)
	assert.ErrorIs(t, <-done, ErrUnauthorized)

	assert.True(t, c.State().Authenticated, "a 401 for the old token must not end the new session")
	assert.Equal(t, "token-2", c.Token())
	stored, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "token-2", stored.Token)
}

func TestUpdateProfileAfterLogoutDoesNotRestoreSession(t *testing.T) {
	srv, entered, release := heldServer(t, "/api/users/profile", http.StatusOK, `{"id":"u1","username":"alice","name":"Alice L.","email":"a@x.com"}`, "token-2")
	store := &MemoryStore{}
	require.NoError(t, store.Save(Session{Profile: Profile{ID: "u1"}, Token: "token-1"}))

	c, _ := newController(t, srv.URL, store)
	require.NoError(t, c.Rehydrate())

	done := make(chan error, 1)
	go func() {
		_, err := c.UpdateProfile(context.Background(), models.ProfileUpdate{Name: ptrTo("Alice L.")})
		done <- err
	}()
	<-entered

	c.Logout()
	close(release)
	require.NoError(t, <-done)

	assert.False(t, c.State().Authenticated)
	_, ok, err := store.Load()
	require.NoError(t, err)
	assert.False(t, ok, "logged-out session stays cleared")
}

func TestOverlappingAuthCallsFailFast(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Login bem-sucedido","user":{"id":"u1","username":"alice","name":"","email":"a@x.com","token":"tok"}}`))
	}))
	defer srv.Close()

	c, _ := newController(t, srv.URL, &MemoryStore{})

	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background(), "a@x.com", "secret1") }()
	<-entered

	assert.ErrorIs(t, c.Login(context.Background(), "a@x.com", "secret1"), ErrAuthInProgress)
	assert.ErrorIs(t, c.Register(context.Background(), alice), ErrAuthInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, "tok", c.Token())
}

func TestUpdateProfileAndDeleteAccount(t *testing.T) {
	srv := newServer(t)
	store := &MemoryStore{}
	c, rec := newController(t, srv.URL, store)
	ctx := context.Background()
	require.NoError(t, c.Register(ctx, alice))
	token := c.Token()

	name := "Alice Liddell"
	profile, err := c.UpdateProfile(ctx, models.ProfileUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, profile.Name)
	assert.Equal(t, name, c.State().User.Name)
	assert.Equal(t, token, c.Token(), "token survives a profile update")

	stored, _, _ := store.Load()
	assert.Equal(t, name, stored.Name)

	wrong, next := "nope", "another1"
	_, err = c.UpdateProfile(ctx, models.ProfileUpdate{CurrentPassword: &wrong, NewPassword: &next})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.True(t, c.State().Authenticated, "a wrong current password does not end the session")

	fetched, err := c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, name, fetched.Name)

	require.NoError(t, c.DeleteAccount(ctx))
	assert.False(t, c.State().Authenticated)
	assert.Equal(t, PathLanding, rec.lastPath())

	err = c.Login(ctx, alice.Email, alice.Password)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestAccountCallsNeedSession(t *testing.T) {
	c, _ := newController(t, "http://127.0.0.1:0", &MemoryStore{})
	ctx := context.Background()

	_, err := c.Profile(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = c.UpdateProfile(ctx, models.ProfileUpdate{})
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, c.DeleteAccount(ctx), ErrNotLoggedIn)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	c := NewController("http://127.0.0.1:0", &MemoryStore{})
	var calls int
	unsubscribe := c.Subscribe(func(State) { calls++ })

	c.Logout()
	unsubscribe()
	c.Logout()

	assert.Equal(t, 1, calls)
}

func TestNetworkErrorIsNotAuthFailure(t *testing.T) {
	c, _ := newController(t, "http://127.0.0.1:1", &MemoryStore{})

	err := c.Login(context.Background(), "a@x.com", "secret1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAuthenticationFailed))
}

func ptrTo[T any](v T) *T { return &v }
