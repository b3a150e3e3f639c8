// Package api is the application-facing facade. Every failure is returned as
// an *Error value carrying a message for the caller; nothing panics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"social_feed/internal/connection"
	"social_feed/internal/domain"
	"social_feed/internal/graph"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

// Error is the {error: message} value returned by every operation. Status is
// the HTTP status the server answers with.
type Error struct {
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// ConnectResult is returned by a successful ConnectPage.
type ConnectResult struct {
	PageName     string `json:"pageName"`
	AppID        string `json:"appId"`
	ClientSecret string `json:"clientSecret"`
}

type FetchResult struct {
	RunID   string             `json:"runId"`
	Fetched int                `json:"fetched"`
	Passes  []domain.PassStats `json:"passes"`
}

type ListQuery struct {
	Tag    string
	Limit  int
	Offset int
}

type ItemList struct {
	Items  []domain.Item `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

type API struct {
	connections Connections
	syncer      Syncer
	items       map[domain.Source]ItemReader
	remover     Remover
	logger      *slog.Logger
}

func New(connections Connections, syncer Syncer, posts, media ItemReader, remover Remover, logger *slog.Logger) *API {
	return &API{
		connections: connections,
		syncer:      syncer,
		items: map[domain.Source]ItemReader{
			domain.SourceFacebook:  posts,
			domain.SourceInstagram: media,
		},
		remover: remover,
		logger:  logger.With("component", "api"),
	}
}

func (a *API) GetSettings(ctx context.Context) (domain.AppCredentials, *Error) {
	creds, err := a.connections.Settings(ctx)
	if err != nil {
		return domain.AppCredentials{}, a.fail("get settings", err)
	}
	return creds, nil
}

func (a *API) SaveSettings(ctx context.Context, partial map[string]any) (domain.AppCredentials, *Error) {
	creds, err := a.connections.SaveSettings(ctx, partial)
	if err != nil {
		return domain.AppCredentials{}, a.fail("save settings", err)
	}
	return creds, nil
}

func (a *API) ConnectPage(ctx context.Context, req connection.ConnectRequest) (ConnectResult, *Error) {
	conn, err := a.connections.Connect(ctx, req)
	if err != nil {
		return ConnectResult{}, a.fail("connect page", err)
	}

	creds, err := a.connections.Settings(ctx)
	if err != nil {
		return ConnectResult{}, a.fail("connect page", err)
	}

	return ConnectResult{
		PageName:     conn.PageName,
		AppID:        creds.AppID,
		ClientSecret: creds.ClientSecret,
	}, nil
}

func (a *API) GetConnectedPage(ctx context.Context) (domain.ConnectedPage, *Error) {
	page, err := a.connections.ConnectedPage(ctx)
	if err != nil {
		return domain.ConnectedPage{}, a.fail("get connected page", err)
	}
	return page, nil
}

func (a *API) Status(ctx context.Context) (domain.ConnectionStatus, *Error) {
	status, err := a.connections.Status(ctx)
	if err != nil {
		return domain.ConnectionStatus{}, a.fail("get status", err)
	}
	return status, nil
}

// FetchPosts runs one sync and reports how many records were created.
func (a *API) FetchPosts(ctx context.Context) (FetchResult, *Error) {
	stats, err := a.syncer.Sync(ctx)
	if err != nil {
		return FetchResult{}, a.fail("fetch posts", err)
	}
	return FetchResult{RunID: stats.RunID, Fetched: stats.Fetched, Passes: stats.Passes}, nil
}

func (a *API) ListPosts(ctx context.Context, q ListQuery) (ItemList, *Error) {
	return a.ListItems(ctx, domain.SourceFacebook, q)
}

func (a *API) ListMedia(ctx context.Context, q ListQuery) (ItemList, *Error) {
	return a.ListItems(ctx, domain.SourceInstagram, q)
}

func (a *API) GetPost(ctx context.Context, externalID string) (*domain.Item, *Error) {
	return a.GetItem(ctx, domain.SourceFacebook, externalID)
}

func (a *API) GetMedia(ctx context.Context, externalID string) (*domain.Item, *Error) {
	return a.GetItem(ctx, domain.SourceInstagram, externalID)
}

func (a *API) DeletePost(ctx context.Context, externalID string) (*domain.Item, *Error) {
	return a.DeleteItem(ctx, domain.SourceFacebook, externalID)
}

func (a *API) DeleteMedia(ctx context.Context, externalID string) (*domain.Item, *Error) {
	return a.DeleteItem(ctx, domain.SourceInstagram, externalID)
}

func (a *API) ListItems(ctx context.Context, source domain.Source, q ListQuery) (ItemList, *Error) {
	reader, apiErr := a.reader(source)
	if apiErr != nil {
		return ItemList{}, apiErr
	}

	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		return ItemList{}, &Error{Message: "offset must not be negative", Status: http.StatusBadRequest}
	}

	items, err := reader.List(ctx, q.Tag, q.Limit, q.Offset)
	if err != nil {
		return ItemList{}, a.fail("list items", err)
	}
	return ItemList{Items: items, Limit: q.Limit, Offset: q.Offset}, nil
}

func (a *API) GetItem(ctx context.Context, source domain.Source, externalID string) (*domain.Item, *Error) {
	reader, apiErr := a.reader(source)
	if apiErr != nil {
		return nil, apiErr
	}

	item, err := reader.Get(ctx, externalID)
	if err != nil {
		return nil, a.fail("get item", err)
	}
	return item, nil
}

func (a *API) DeleteItem(ctx context.Context, source domain.Source, externalID string) (*domain.Item, *Error) {
	if _, apiErr := a.reader(source); apiErr != nil {
		return nil, apiErr
	}

	item, err := a.remover.Remove(ctx, source, externalID)
	if err != nil {
		return nil, a.fail("delete item", err)
	}
	return item, nil
}

func (a *API) reader(source domain.Source) (ItemReader, *Error) {
	reader, ok := a.items[source]
	if !ok || reader == nil {
		return nil, &Error{Message: fmt.Sprintf("unknown source %q", source), Status: http.StatusNotFound}
	}
	return reader, nil
}

// fail logs err and converts it to an *Error with a matching status.
func (a *API) fail(op string, err error) *Error {
	var (
		authErr *domain.AuthError
		apiErr  *graph.APIError
	)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotConnected), errors.Is(err, domain.ErrSyncInProgress):
		status = http.StatusConflict
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
	case errors.As(err, &apiErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error(op+" failed", "error", err)
	} else {
		a.logger.Info(op+" rejected", "error", err, "status", status)
	}

	return &Error{Message: err.Error(), Status: status}
}
