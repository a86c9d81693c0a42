package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/isdelr/goals-be/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Views the controller navigates to.
const (
	PathLanding   = "/"
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
)

var (
	// ErrAuthenticationFailed is the only failure a login reports.
	ErrAuthenticationFailed = errors.New("authentication failed: check your credentials")
	// ErrAuthInProgress is returned when a login or registration is
	// already running.
	ErrAuthInProgress = errors.New("another login or registration is in progress")
	// ErrNotLoggedIn is returned by account operations without a session.
	ErrNotLoggedIn = errors.New("not logged in")
)

// State is the controller's belief about who is logged in.
type State struct {
	Authenticated bool
	User          Profile
}

// Listener is called after every state change.
type Listener func(State)

// Navigator moves the user interface to another view.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Option configures a Controller.
type Option func(*Controller)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ctl *Controller) { ctl.api.httpClient = c }
}

// WithNavigator sets where navigation requests go.
func WithNavigator(n Navigator) Option {
	return func(ctl *Controller) { ctl.nav = n }
}

// Controller is the single owner of the client session. Construct one per
// process and hand it to every consumer.
type Controller struct {
	store Store
	api   *API
	nav   Navigator

	// auth admits one login or registration at a time.
	auth *semaphore.Weighted

	// swapMu orders store writes with session changes, so the stored and
	// in-memory sessions never disagree.
	swapMu sync.Mutex

	mu        sync.RWMutex
	session   *Session
	listeners map[int]Listener
	nextID    int
}

// NewController creates a controller talking to the server at baseURL.
func NewController(baseURL string, store Store, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		api:       newAPI(baseURL, nil),
		nav:       NavigatorFunc(func(string) {}),
		auth:      semaphore.NewWeighted(1),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.api.token = c.Token
	c.api.onUnauthorized = c.forceLogout
	return c
}

// Rehydrate restores a persisted session without contacting the server. A
// rejected token is discovered by the next request.
func (c *Controller) Rehydrate() error {
	session, ok, err := c.store.Load()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	_, err = c.swapSession(&session, nil)
	return err
}

// Login verifies credentials with the server and stores the new session.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	if !c.auth.TryAcquire(1) {
		return ErrAuthInProgress
	}
	defer c.auth.Release(1)

	var resp authResponse
	err := c.api.do(ctx, http.MethodPost, "/api/users/login", models.Credentials{Email: email, Password: password}, &resp, true)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
			return ErrAuthenticationFailed
		}
		return err
	}
	return c.startSession(resp.User)
}

// Register creates an account and logs straight into it. Server validation
// messages are returned as *APIError for display next to the form.
func (c *Controller) Register(ctx context.Context, in models.RegisterInput) error {
	if !c.auth.TryAcquire(1) {
		return ErrAuthInProgress
	}
	defer c.auth.Release(1)

	var resp authResponse
	if err := c.api.do(ctx, http.MethodPost, "/api/users/register", in, &resp, true); err != nil {
		return err
	}
	return c.startSession(resp.User)
}

// Logout clears the session and returns to the landing view.
func (c *Controller) Logout() {
	c.swapSession(nil, nil)
	c.nav.Navigate(PathLanding)
}

// forceLogout runs when the server rejects token. A token from a session
// that has since been replaced is ignored.
func (c *Controller) forceLogout(token string) {
	cleared, _ := c.swapSession(nil, holdsToken(token))
	if !cleared {
		return
	}
	log.Info().Msg("Session rejected by server, logging out")
	c.nav.Navigate(PathLanding)
}

// Profile fetches the account from the server.
func (c *Controller) Profile(ctx context.Context) (Profile, error) {
	if !c.State().Authenticated {
		return Profile{}, ErrNotLoggedIn
	}
	var profile Profile
	if err := c.api.do(ctx, http.MethodGet, "/api/users/profile", nil, &profile, false); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// UpdateProfile changes the account and refreshes the stored profile.
func (c *Controller) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (Profile, error) {
	token := c.Token()
	if token == "" {
		return Profile{}, ErrNotLoggedIn
	}
	var profile Profile
	if err := c.api.send(ctx, http.MethodPut, "/api/users/profile", token, upd, &profile, false); err != nil {
		return Profile{}, err
	}

	// The session may have been replaced or cleared meanwhile; only the
	// one that made the request is refreshed.
	next := Session{Profile: profile, Token: token}
	if _, err := c.swapSession(&next, holdsToken(token)); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// DeleteAccount removes the account on the server, then logs out.
func (c *Controller) DeleteAccount(ctx context.Context) error {
	if !c.State().Authenticated {
		return ErrNotLoggedIn
	}
	if err := c.api.do(ctx, http.MethodDelete, "/api/users/profile", nil, nil, false); err != nil {
		return err
	}
	c.Logout()
	return nil
}

// Activity returns the account's most recent events.
func (c *Controller) Activity(ctx context.Context, limit int) ([]models.Event, error) {
	path := "/api/users/activity"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var events []models.Event
	if err := c.api.do(ctx, http.MethodGet, path, nil, &events, false); err != nil {
		return nil, err
	}
	return events, nil
}

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

// Token returns the bearer token, or "".
func (c *Controller) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.Token
}

// Subscribe registers l for state changes and returns a function that
// removes it.
func (c *Controller) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Controller) startSession(user sessionUser) error {
	session := Session{
		Profile: Profile{ID: user.ID, Username: user.Username, Name: user.Name, Email: user.Email},
		Token:   user.Token,
	}
	if session.Token == "" {
		return errors.New("server returned no token")
	}
	if _, err := c.swapSession(&session, nil); err != nil {
		return err
	}
	c.nav.Navigate(PathDashboard)
	return nil
}

// holdsToken matches a current session carrying token.
func holdsToken(token string) func(*Session) bool {
	return func(current *Session) bool {
		return current != nil && current.Token == token
	}
}

// swapSession persists next (nil clears the store) and makes it current,
// provided match accepts the current session; a nil match always swaps.
// Listeners are notified after the swap is complete.
func (c *Controller) swapSession(next *Session, match func(*Session) bool) (bool, error) {
	c.swapMu.Lock()

	c.mu.RLock()
	current := c.session
	c.mu.RUnlock()
	if match != nil && !match(current) {
		c.swapMu.Unlock()
		return false, nil
	}

	if next == nil {
		if err := c.store.Clear(); err != nil {
			log.Warn().Err(err).Msg("Failed to clear stored session")
		}
	} else if err := c.store.Save(*next); err != nil {
		c.swapMu.Unlock()
		return false, fmt.Errorf("saving session: %w", err)
	}

	c.mu.Lock()
	c.session = next
	state := c.stateLocked()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	c.swapMu.Unlock()

	for _, l := range listeners {
		l(state)
	}
	return true, nil
}

func (c *Controller) stateLocked() State {
	if c.session == nil {
		return State{}
	}
	return State{Authenticated: true, User: c.session.Profile}
}

type sessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Token    string `json:"token"`
}

type authResponse struct {
	Message string      `json:"message"`
	User    sessionUser `json:"user"`
}
