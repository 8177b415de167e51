// Package session owns the authenticated session: current user, loading
// flag, token lifecycle, and the refresh-before-call policy every gated
// operation goes through.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rekadana/opname/internal/errs"
	"github.com/rekadana/opname/internal/gateway"
	"github.com/rekadana/opname/internal/model"
)

// State tracks the session lifecycle.
type State int

const (
	StateUnknown State = iota
	StateRestoring
	StateAnonymous
	StateRefreshing
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateRestoring:
		return "restoring"
	case StateAnonymous:
		return "anonymous"
	case StateRefreshing:
		return "refreshing"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Gateway is the backend surface the manager depends on.
type Gateway interface {
	Login(ctx context.Context, username, password string) (*gateway.LoginResult, error)
	Logout(ctx context.Context, token string) error
	ValidateToken(ctx context.Context, token string) (*gateway.RefreshResult, error)
	ListDrafts(ctx context.Context, office, department, token string) ([]model.DraftRecord, error)
	ListItems(ctx context.Context, noref, token string) (*gateway.ItemsResult, error)
	GetProgress(ctx context.Context, noref, token string) ([]model.ProgressRecord, error)
	CheckItem(ctx context.Context, noref, noid, token string) ([]model.ItemRecord, error)
	SaveItem(ctx context.Context, req model.SaveItemRequest, token string) error
	ListConditions(ctx context.Context, token string) ([]model.ConditionCode, error)
	UploadLog(ctx context.Context, message, logFilePath, token string) error
}

// TokenStore persists the bearer token and its expiry between runs.
type TokenStore interface {
	Save(token string) error
	Get() string
	Clear() error
	SetExpiry(exp int64) error
	GetExpiry() (int64, bool)
}

// Manager is the session state machine. Construct once at process start and
// inject into everything that needs authenticated calls.
type Manager struct {
	gw    Gateway
	store TokenStore
	log   *zap.Logger

	mu      sync.Mutex
	state   State
	user    *model.UserProfile
	loading bool

	refresh singleflight.Group
}

// NewManager constructs a Manager with required dependencies.
func NewManager(gw Gateway, store TokenStore, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{gw: gw, store: store, log: logger.Named("session"), state: StateUnknown}
}

// Bootstrap restores the session from the token store. Runs once at process
// start: a stored token is validated against the backend; any failure clears
// it and lands the session in Anonymous.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.setState(StateRestoring)
	m.setLoading(true)
	defer m.setLoading(false)

	token := m.store.Get()
	if token == "" {
		m.setState(StateAnonymous)
		return
	}

	res, err := m.gw.ValidateToken(ctx, token)
	if err != nil {
		m.log.Error("restore session", zap.Error(err))
		m.clearLocal()
		return
	}
	if res.Token != "" {
		m.persistToken(res.Token)
	}
	m.adopt(res)
	m.log.Info("session restored", zap.String("username", res.User.Username))
}

// Login authenticates, persists the issued token and its decoded expiry, and
// moves the session to Authenticated. The expiry is read from the JWT payload
// without signature verification and is informational only.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	m.setLoading(true)
	defer m.setLoading(false)

	res, err := m.gw.Login(ctx, username, password)
	if err != nil {
		m.log.Error("login", zap.Error(err))
		return fmt.Errorf("login: %w", err)
	}

	m.persistToken(res.Token)

	m.mu.Lock()
	u := res.User
	m.user = &u
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.log.Info("login", zap.String("username", res.User.Username))
	return nil
}

// Logout invalidates the session. The remote call is best-effort: its failure
// is logged, never surfaced, because local state must clear regardless.
func (m *Manager) Logout(ctx context.Context) {
	m.setLoading(true)
	defer m.setLoading(false)

	if tok := m.store.Get(); tok != "" {
		if err := m.gw.Logout(ctx, tok); err != nil {
			m.log.Warn("remote logout", zap.Error(err))
		}
	}
	m.clearLocal()
	m.log.Info("logout")
}

// RefreshToken validates the current token against the backend. A new token
// in the response is adopted and persisted; success without a token keeps the
// current one. Rejection or any transport failure forces a logout — inability
// to confirm validity is treated as invalid. Concurrent callers share one
// backend call.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	v, err, _ := m.refresh.Do("refresh", func() (any, error) {
		return m.refreshOnce(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refreshOnce(ctx context.Context) (string, error) {
	current := m.store.Get()
	if current == "" {
		return "", fmt.Errorf("refresh token: %w", errs.ErrUnauthorized)
	}

	m.setState(StateRefreshing)
	res, err := m.gw.ValidateToken(ctx, current)
	if err != nil {
		m.log.Error("refresh token", zap.Error(err))
		m.clearLocal()
		return "", fmt.Errorf("refresh token: %w", err)
	}

	if res.Token == "" {
		// Still valid, no replacement issued.
		m.adopt(res)
		return current, nil
	}

	m.persistToken(res.Token)
	m.adopt(res)
	m.log.Info("token refreshed", zap.String("username", res.User.Username))
	return res.Token, nil
}

// WithValidToken performs exactly one refresh attempt and then invokes fn
// with whatever token is current. When the refresh forced a logout fn still
// runs with an empty token and fails at the backend; the backend stays the
// authority on validity.
func (m *Manager) WithValidToken(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	if _, err := m.RefreshToken(ctx); err != nil {
		m.log.Warn("refresh before call", zap.Error(err))
	}
	return fn(ctx, m.store.Get())
}

// ---- data passthroughs ----
// Each toggles loading, delegates with the current token, and never mutates
// the user.

// FetchDrafts lists draft sessions for the office/department pair.
func (m *Manager) FetchDrafts(ctx context.Context, office, department string) ([]model.DraftRecord, error) {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.ListDrafts(ctx, office, department, m.store.Get())
}

// FetchItems lists all item lines of one draft.
func (m *Manager) FetchItems(ctx context.Context, noref string) (*gateway.ItemsResult, error) {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.ListItems(ctx, noref, m.store.Get())
}

// FetchProgress fetches the draft/updated counters of one draft.
func (m *Manager) FetchProgress(ctx context.Context, noref string) ([]model.ProgressRecord, error) {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.GetProgress(ctx, noref, m.store.Get())
}

// CheckItem looks up a serial/asset tag within a draft.
func (m *Manager) CheckItem(ctx context.Context, noref, noid string) ([]model.ItemRecord, error) {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.CheckItem(ctx, noref, noid, m.store.Get())
}

// SaveItem submits one counted item.
func (m *Manager) SaveItem(ctx context.Context, req model.SaveItemRequest) error {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.SaveItem(ctx, req, m.store.Get())
}

// FetchConditions loads the condition enumeration; requires a token.
func (m *Manager) FetchConditions(ctx context.Context) ([]model.ConditionCode, error) {
	tok := m.store.Get()
	if tok == "" {
		return nil, fmt.Errorf("fetch conditions: %w", errs.ErrUnauthorized)
	}
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.ListConditions(ctx, tok)
}

// SendHelpLog uploads the application log file with a user message.
func (m *Manager) SendHelpLog(ctx context.Context, message, logFilePath string) error {
	m.setLoading(true)
	defer m.setLoading(false)
	return m.gw.UploadLog(ctx, message, logFilePath, m.store.Get())
}

// ---- accessors ----

// IsAuthenticated reports whether a user is attached to the session.
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

// User returns a copy of the current profile, or nil when anonymous.
func (m *Manager) User() *model.UserProfile {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// Loading reports whether a session operation is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ---- internals ----

// adopt installs the profile from a successful validate/refresh response.
// The caller has already persisted the token when it changed, so token and
// user move together.
func (m *Manager) adopt(res *gateway.RefreshResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := res.User
	m.user = &u
	m.state = StateAuthenticated
}

// persistToken stores the token and its decoded expiry. Persist failures are
// non-fatal: the in-memory session stays authoritative for this process.
func (m *Manager) persistToken(token string) {
	if err := m.store.Save(token); err != nil {
		m.log.Warn("persist token", zap.Error(err))
	}
	if exp, ok := decodeExpiry(token); ok {
		if err := m.store.SetExpiry(exp); err != nil {
			m.log.Warn("persist token expiry", zap.Error(err))
		}
	}
}

// clearLocal drops the token and user together and lands in Anonymous.
func (m *Manager) clearLocal() {
	if err := m.store.Clear(); err != nil {
		m.log.Warn("clear token store", zap.Error(err))
	}
	m.mu.Lock()
	m.user = nil
	m.state = StateAnonymous
	m.mu.Unlock()
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// decodeExpiry reads the exp claim from the JWT payload without verifying the
// signature. Client-side expiry tracking is informational only.
func decodeExpiry(token string) (int64, bool) {
	var claims jwt.RegisteredClaims
	_, _ = jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return nil, nil },
		jwt.WithoutClaimsValidation(),
	)
	if claims.ExpiresAt == nil {
		return 0, false
	}
	return claims.ExpiresAt.Unix(), true
}
