package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"social_feed/internal/domain"
)

const (
	settingsKey   = "settings"
	connectionKey = "connection"
)

// ConnectRequest carries what the admin UI obtains from the login dialog.
type ConnectRequest struct {
	UserToken   string `json:"userToken"`
	UserID      string `json:"userId"`
	PrimaryOnly bool   `json:"primaryOnly"`
}

// Manager owns app credentials and the connected page identity.
type Manager struct {
	store  Store
	graph  Graph
	logger *slog.Logger
	now    func() time.Time

	mu sync.Mutex
}

func NewManager(store Store, graph Graph, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		graph:  graph,
		logger: logger.With("component", "connection"),
		now:    time.Now,
	}
}

// Settings returns the stored app credentials, or empty ones if none were saved.
func (m *Manager) Settings(ctx context.Context) (domain.AppCredentials, error) {
	var creds domain.AppCredentials
	if _, err := m.store.Get(ctx, settingsKey, &creds); err != nil {
		return domain.AppCredentials{}, fmt.Errorf("load settings: %w", err)
	}
	return creds, nil
}

// SaveSettings merges the recognized string fields of partial into the stored
// credentials. Unknown keys and non-string values are dropped.
func (m *Manager) SaveSettings(ctx context.Context, partial map[string]any) (domain.AppCredentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.Settings(ctx)
	if err != nil {
		return domain.AppCredentials{}, err
	}

	fields := map[string]*string{
		"appName":      &creds.AppName,
		"appId":        &creds.AppID,
		"appSecret":    &creds.AppSecret,
		"clientSecret": &creds.ClientSecret,
	}
	for key, value := range partial {
		dst, ok := fields[key]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok {
			*dst = s
		}
	}

	if err := m.store.Set(ctx, settingsKey, creds); err != nil {
		return domain.AppCredentials{}, fmt.Errorf("save settings: %w", err)
	}
	return creds, nil
}

// Connect exchanges a short-lived user token and binds the single page the
// user manages. Any previous connection is replaced.
func (m *Manager) Connect(ctx context.Context, req ConnectRequest) (*domain.Connection, error) {
	if req.UserToken == "" || req.UserID == "" {
		return nil, &domain.AuthError{Op: "connect", Err: errors.New("user token and user id are required")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if creds.AppID == "" || creds.AppSecret == "" {
		return nil, &domain.AuthError{Op: "connect", Err: errors.New("app credentials are not configured")}
	}

	token, err := m.graph.ExchangeToken(ctx, creds.AppID, creds.AppSecret, req.UserToken)
	if err != nil {
		return nil, &domain.AuthError{Op: "exchange token", Err: err}
	}

	accounts, err := m.graph.Accounts(ctx, req.UserID, token.AccessToken)
	if err != nil {
		return nil, &domain.AuthError{Op: "list accounts", Err: err}
	}
	if len(accounts) != 1 {
		return nil, &domain.AuthError{
			Op:  "list accounts",
			Err: fmt.Errorf("expected exactly one managed page, got %d", len(accounts)),
		}
	}

	page := accounts[0]
	conn := &domain.Connection{
		PageID:              page.ID,
		PageName:            page.Name,
		PageToken:           page.AccessToken,
		UserID:              req.UserID,
		LongUserToken:       token.AccessToken,
		SyncSecondarySource: !req.PrimaryOnly,
		ConnectedAt:         m.now().UTC(),
	}

	if err := m.store.Set(ctx, connectionKey, conn); err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}

	m.logger.Info("page connected",
		"page_id", conn.PageID,
		"page_name", conn.PageName,
		"secondary_source", conn.SyncSecondarySource,
	)

	return conn, nil
}

// Connection returns the stored connection, or nil when none exists.
func (m *Manager) Connection(ctx context.Context) (*domain.Connection, error) {
	var conn domain.Connection
	found, err := m.store.Get(ctx, connectionKey, &conn)
	if err != nil {
		return nil, fmt.Errorf("load connection: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &conn, nil
}

// RefreshPageToken derives a fresh page token from the long-lived user token
// and writes it back to the stored connection.
func (m *Manager) RefreshPageToken(ctx context.Context, conn *domain.Connection) (string, error) {
	if !conn.Renewable() {
		return "", domain.ErrNotConnected
	}

	accounts, err := m.graph.Accounts(ctx, conn.UserID, conn.LongUserToken)
	if err != nil {
		return "", &domain.AuthError{Op: "refresh page token", Err: err}
	}
	if len(accounts) != 1 {
		return "", &domain.AuthError{
			Op:  "refresh page token",
			Err: fmt.Errorf("expected exactly one managed page, got %d", len(accounts)),
		}
	}
	if accounts[0].ID != conn.PageID {
		return "", &domain.AuthError{
			Op:  "refresh page token",
			Err: fmt.Errorf("managed page %s does not match connected page %s", accounts[0].ID, conn.PageID),
		}
	}

	conn.PageToken = accounts[0].AccessToken
	err = m.writeBack(ctx, conn, func(stored *domain.Connection) {
		stored.PageToken = conn.PageToken
	})
	if err != nil {
		return "", err
	}
	return conn.PageToken, nil
}

// ResolveLinkedAccount looks up the business account linked to the connected
// page. It returns "" when the page has none. A changed id is written back.
func (m *Manager) ResolveLinkedAccount(ctx context.Context, conn *domain.Connection, pageToken string) (string, error) {
	id, err := m.graph.LinkedAccount(ctx, conn.PageID, pageToken)
	if err != nil {
		return "", fmt.Errorf("resolve linked account: %w", err)
	}

	if id != conn.LinkedAccountID {
		conn.LinkedAccountID = id
		err := m.writeBack(ctx, conn, func(stored *domain.Connection) {
			stored.LinkedAccountID = id
		})
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

func (m *Manager) Status(ctx context.Context) (domain.ConnectionStatus, error) {
	conn, err := m.Connection(ctx)
	if err != nil {
		return domain.ConnectionStatus{}, err
	}
	if !conn.Renewable() {
		return domain.ConnectionStatus{}, nil
	}
	return domain.ConnectionStatus{
		Connected: true,
		PageName:  conn.PageName,
		AccountID: conn.LinkedAccountID,
	}, nil
}

func (m *Manager) ConnectedPage(ctx context.Context) (domain.ConnectedPage, error) {
	creds, err := m.Settings(ctx)
	if err != nil {
		return domain.ConnectedPage{}, err
	}
	conn, err := m.Connection(ctx)
	if err != nil {
		return domain.ConnectedPage{}, err
	}

	page := domain.ConnectedPage{
		AppID:        creds.AppID,
		ClientSecret: creds.ClientSecret,
	}
	if conn != nil {
		page.PageName = conn.PageName
		page.PrimaryOnly = !conn.SyncSecondarySource
	}
	return page, nil
}

// writeBack applies update to the stored connection, provided it is still the
// one conn was loaded from. A connection replaced by Connect in the meantime is
// left untouched.
func (m *Manager) writeBack(ctx context.Context, conn *domain.Connection, update func(stored *domain.Connection)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, err := m.Connection(ctx)
	if err != nil {
		return err
	}
	if stored == nil || stored.PageID != conn.PageID || stored.LongUserToken != conn.LongUserToken {
		m.logger.Info("connection replaced during sync, skipping write-back", "page_id", conn.PageID)
		return nil
	}

	update(stored)
	if err := m.store.Set(ctx, connectionKey, stored); err != nil {
		return fmt.Errorf("save connection: %w", err)
	}
	return nil
}
