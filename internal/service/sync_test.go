package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"social_feed/internal/config"
	"social_feed/internal/domain"
	"social_feed/internal/graph"
	"social_feed/internal/service/mocks"
)

type SyncServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller
	ctx  context.Context

	graph       *mocks.MockGraph
	connections *mocks.MockConnections
	images      *mocks.MockImageEnricher
	posts       *mocks.MockItemStore
	media       *mocks.MockItemStore
	tags        *mocks.MockTagStore
	syncState   *mocks.MockSyncStateStore
	txManager   *mocks.MockTransactionManager
	publisher   *mocks.MockPublisher

	service *SyncService
	cfg     config.SyncConfig
	logger  *slog.Logger
}

func (s *SyncServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ctx = context.Background()

	s.graph = mocks.NewMockGraph(s.ctrl)
	s.connections = mocks.NewMockConnections(s.ctrl)
	s.images = mocks.NewMockImageEnricher(s.ctrl)
	s.posts = mocks.NewMockItemStore(s.ctrl)
	s.media = mocks.NewMockItemStore(s.ctrl)
	s.tags = mocks.NewMockTagStore(s.ctrl)
	s.syncState = mocks.NewMockSyncStateStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.SyncConfig{
		Interval:        5 * time.Minute,
		MaxItemsPerPass: 100,
		MaxPagesPerPass: 10,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()
	s.syncState.EXPECT().RecordCreated(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.graph.EXPECT().FeedURL("42", "page-token").Return("feed-1").AnyTimes()
	s.graph.EXPECT().MediaURL("ig1", "page-token").Return("media-1").AnyTimes()

	s.service = s.newService(s.cfg)
}

func (s *SyncServiceTestSuite) newService(cfg config.SyncConfig) *SyncService {
	return NewSyncService(
		s.graph,
		s.connections,
		s.images,
		s.posts,
		s.media,
		s.tags,
		s.syncState,
		s.txManager,
		s.publisher,
		s.logger,
		cfg,
	)
}

func (s *SyncServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSyncServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SyncServiceTestSuite))
}

func (s *SyncServiceTestSuite) expectConnection(secondary bool) *domain.Connection {
	conn := &domain.Connection{
		PageID:              "42",
		PageName:            "My Page",
		UserID:              "u1",
		LongUserToken:       "long",
		SyncSecondarySource: secondary,
	}
	s.connections.EXPECT().Connection(gomock.Any()).Return(conn, nil)
	s.connections.EXPECT().RefreshPageToken(gomock.Any(), conn).Return("page-token", nil)
	return conn
}

// createdItems records every item handed to store.Create and reports it as new.
func (s *SyncServiceTestSuite) createdItems(store *mocks.MockItemStore) *[]domain.Item {
	var items []domain.Item
	store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, item *domain.Item) (bool, error) {
			item.ID = int64(len(items) + 1)
			items = append(items, *item)
			return true, nil
		},
	).AnyTimes()
	return &items
}

func post(id, message string) graph.Post {
	return graph.Post{
		ID:          id,
		Message:     message,
		CreatedTime: graph.Time{Time: time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)},
	}
}

func postsPage(next string, posts ...graph.Post) *graph.Page[graph.Post] {
	page := &graph.Page[graph.Post]{Data: posts}
	if next != "" {
		page.Paging = &graph.Paging{Next: next}
	}
	return page
}

func (s *SyncServiceTestSuite) TestSync_NotConnected() {
	s.connections.EXPECT().Connection(s.ctx).Return(nil, nil)

	stats, err := s.service.Sync(s.ctx)

	s.Nil(stats)
	s.True(errors.Is(err, domain.ErrNotConnected))
}

func (s *SyncServiceTestSuite) TestSync_MissingUserTokenIsNotConnected() {
	s.connections.EXPECT().Connection(s.ctx).Return(&domain.Connection{PageID: "42"}, nil)

	_, err := s.service.Sync(s.ctx)

	s.True(errors.Is(err, domain.ErrNotConnected))
}

func (s *SyncServiceTestSuite) TestSync_AuthErrorIsTerminal() {
	conn := &domain.Connection{PageID: "42", UserID: "u1", LongUserToken: "long"}
	s.connections.EXPECT().Connection(s.ctx).Return(conn, nil)
	s.connections.EXPECT().RefreshPageToken(s.ctx, conn).
		Return("", &domain.AuthError{Op: "refresh page token", Err: errors.New("expired")})

	_, err := s.service.Sync(s.ctx)

	var authErr *domain.AuthError
	s.True(errors.As(err, &authErr))
}

func (s *SyncServiceTestSuite) TestSync_NewPosts() {
	s.expectConnection(false)
	created := s.createdItems(s.posts)

	withImage := post("42_1", "Great day :sunny :happy\nsee you")
	withImage.FullPicture = "https://cdn.example.com/1.jpg"
	withImage.From = &graph.Profile{Name: "Page Admin"}
	withImage.PermalinkURL = "https://facebook.com/42_1"

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return([]string{}, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("", withImage, post("42_2", "")), nil)
	s.images.EXPECT().Enrich(gomock.Any(), "https://cdn.example.com/1.jpg", "42_1").
		Return(&domain.FeaturedImage{URL: "https://cms.example.com/uploads/facebook-feed/42_1.webp", Width: 100, Height: 50}, nil)
	s.tags.EXPECT().LinkToItem(gomock.Any(), domain.SourceFacebook, int64(1), []string{":sunny", ":happy"}).Return(nil)
	s.publisher.EXPECT().Publish(gomock.Any(), domain.ActionCreate, domain.SourceFacebook, gomock.Any()).Return(nil)

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, stats.Fetched)
	s.NotEmpty(stats.RunID)
	s.Require().Len(stats.Passes, 1)
	s.Equal(domain.PassStats{
		Source:    domain.SourceFacebook,
		Fetched:   1,
		Skipped:   1,
		Pages:     1,
		Published: 1,
		StoppedAt: domain.StopExhausted,
		Duration:  stats.Passes[0].Duration,
	}, stats.Passes[0])

	s.Require().Len(*created, 1)
	item := (*created)[0]
	s.Equal("42_1", item.ExternalID)
	s.Equal("Great day :sunny :happy", item.Title)
	s.Equal(":sunny,:happy", item.Tags)
	s.Equal("Page Admin", item.Author)
	s.Equal("https://cms.example.com/uploads/facebook-feed/42_1.webp", item.FeaturedURL)
	s.Equal("100x50", item.ImageSize)
	s.Equal("https://facebook.com/42_1", item.Permalink)
	s.Nil(item.Updated)
}

func (s *SyncServiceTestSuite) TestSync_StopsAtFirstKnownItem() {
	s.expectConnection(false)
	created := s.createdItems(s.posts)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return([]string{"p3", "p4"}, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("feed-2", post("p1", "one"), post("p2", "two")), nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-2").Return(postsPage("feed-3", post("p3", "three"), post("p5", "five")), nil)

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(2, stats.Fetched)
	s.Equal(domain.StopDuplicate, stats.Passes[0].StoppedAt)
	s.Equal(2, stats.Passes[0].Pages)
	s.Require().Len(*created, 2)
	s.Equal("p1", (*created)[0].ExternalID)
	s.Equal("p2", (*created)[1].ExternalID)
}

func (s *SyncServiceTestSuite) TestSync_SecondRunWithoutNewItemsFetchesNothing() {
	conn := &domain.Connection{PageID: "42", PageName: "My Page", UserID: "u1", LongUserToken: "long"}
	s.connections.EXPECT().Connection(gomock.Any()).Return(conn, nil).Times(2)
	s.connections.EXPECT().RefreshPageToken(gomock.Any(), conn).Return("page-token", nil).Times(2)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return([]string{}, nil)
	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return([]string{"p1"}, nil)
	s.posts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(true, nil).Times(1)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("", post("p1", "one")), nil).Times(2)

	first, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, first.Fetched)

	second, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, second.Fetched)
	s.NotEqual(first.RunID, second.RunID)
}

func (s *SyncServiceTestSuite) TestSync_EnrichmentFailureKeepsItem() {
	s.expectConnection(false)
	created := s.createdItems(s.posts)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	p := post("p1", "hello")
	p.FullPicture = "https://cdn.example.com/broken.jpg"

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("", p), nil)
	s.images.EXPECT().Enrich(gomock.Any(), p.FullPicture, "p1").
		Return(nil, &domain.EnrichmentError{URL: p.FullPicture, Err: errors.New("status 404")})

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(1, stats.Fetched)
	s.Equal(1, stats.Passes[0].EnrichmentErrors)
	s.Require().Len(*created, 1)
	s.Empty((*created)[0].FeaturedURL)
	s.Equal("0x0", (*created)[0].ImageSize)
}

func (s *SyncServiceTestSuite) TestSync_APIErrorEndsPassButNotRun() {
	conn := s.expectConnection(true)
	posts := s.createdItems(s.posts)
	media := s.createdItems(s.media)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("feed-2", post("p1", "one")), nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-2").Return(nil, &graph.APIError{Message: "rate limited", Code: 4})

	s.connections.EXPECT().ResolveLinkedAccount(gomock.Any(), conn, "page-token").Return("ig1", nil)
	s.media.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchMedia(gomock.Any(), "media-1").Return(&graph.Page[graph.Media]{Data: []graph.Media{{
		ID:           "m1",
		Caption:      "reel :fun",
		MediaType:    "VIDEO",
		MediaURL:     "https://cdn.example.com/v.mp4",
		ThumbnailURL: "https://cdn.example.com/t.jpg",
	}}}, nil)
	s.tags.EXPECT().LinkToItem(gomock.Any(), domain.SourceInstagram, int64(1), []string{":fun"}).Return(nil)
	s.images.EXPECT().Enrich(gomock.Any(), "https://cdn.example.com/t.jpg", "m1").
		Return(&domain.FeaturedImage{URL: "/uploads/facebook-feed/m1.webp", Width: 10, Height: 20}, nil)

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(2, stats.Fetched)
	s.Require().Len(stats.Passes, 2)
	s.Equal(domain.StopAPIError, stats.Passes[0].StoppedAt)
	s.Equal(1, stats.Passes[0].Fetched)
	s.Equal(domain.SourceInstagram, stats.Passes[1].Source)
	s.Equal(domain.StopExhausted, stats.Passes[1].StoppedAt)

	s.Len(*posts, 1)
	s.Require().Len(*media, 1)
	item := (*media)[0]
	s.Equal("My Page", item.Author)
	s.Equal("VIDEO", item.MediaType)
	s.Equal(":fun", item.Tags)
	s.Equal("10x20", item.ImageSize)
}

func (s *SyncServiceTestSuite) TestSync_NoLinkedAccountSkipsMedia() {
	conn := s.expectConnection(true)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage(""), nil)
	s.connections.EXPECT().ResolveLinkedAccount(gomock.Any(), conn, "page-token").Return("", nil)

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)

	s.Equal(0, stats.Fetched)
	s.Require().Len(stats.Passes, 2)
	s.Equal(domain.StopSkipped, stats.Passes[1].StoppedAt)
}

func (s *SyncServiceTestSuite) TestSync_LinkedAccountErrorSkipsMedia() {
	conn := s.expectConnection(true)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage(""), nil)
	s.connections.EXPECT().ResolveLinkedAccount(gomock.Any(), conn, "page-token").
		Return("", &graph.APIError{Message: "unsupported", Code: 100})

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(domain.StopSkipped, stats.Passes[1].StoppedAt)
}

func (s *SyncServiceTestSuite) TestSync_RepositoryErrorAbortsRun() {
	s.expectConnection(true)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("", post("p1", "one")), nil)
	s.posts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(false, errors.New("connection reset"))

	stats, err := s.service.Sync(s.ctx)

	s.Error(err)
	s.Contains(err.Error(), "save facebook item p1")
	s.Equal(0, stats.Fetched)
}

func (s *SyncServiceTestSuite) TestSync_KnownIDsErrorAbortsRun() {
	s.expectConnection(false)
	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, errors.New("db down"))

	_, err := s.service.Sync(s.ctx)
	s.Error(err)
}

func (s *SyncServiceTestSuite) TestSync_ConflictIsNotCounted() {
	s.expectConnection(false)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("", post("p1", "one")), nil)
	s.posts.EXPECT().Create(gomock.Any(), gomock.Any()).Return(false, nil)

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(0, stats.Fetched)
	s.Equal(0, stats.Passes[0].Published)
}

func (s *SyncServiceTestSuite) TestSync_PublishFailureIsNotFatal() {
	s.expectConnection(false)
	s.createdItems(s.posts)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("", post("p1", "one")), nil)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("channel closed"))

	stats, err := s.service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Fetched)
	s.Equal(0, stats.Passes[0].Published)
}

func (s *SyncServiceTestSuite) TestSync_ItemCeiling() {
	service := s.newService(config.SyncConfig{MaxItemsPerPass: 2, MaxPagesPerPass: 10})
	s.expectConnection(false)
	created := s.createdItems(s.posts)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").
		Return(postsPage("feed-2", post("p1", "one"), post("p2", "two"), post("p3", "three")), nil)

	stats, err := service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, stats.Fetched)
	s.Equal(domain.StopCeiling, stats.Passes[0].StoppedAt)
	s.Len(*created, 2)
}

func (s *SyncServiceTestSuite) TestSync_PageCeiling() {
	service := s.newService(config.SyncConfig{MaxItemsPerPass: 100, MaxPagesPerPass: 1})
	s.expectConnection(false)
	s.createdItems(s.posts)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").Return(postsPage("feed-2", post("p1", "one")), nil)

	stats, err := service.Sync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, stats.Fetched)
	s.Equal(domain.StopCeiling, stats.Passes[0].StoppedAt)
}

func (s *SyncServiceTestSuite) TestSync_CancelledContextStopsRun() {
	ctx, cancel := context.WithCancel(s.ctx)
	s.expectConnection(false)

	s.posts.EXPECT().ExternalIDs(gomock.Any()).Return(nil, nil)
	s.graph.EXPECT().FetchPosts(gomock.Any(), "feed-1").DoAndReturn(
		func(context.Context, string) (*graph.Page[graph.Post], error) {
			cancel()
			return postsPage("", post("p1", "one")), nil
		},
	)

	_, err := s.service.Sync(ctx)
	s.True(errors.Is(err, context.Canceled))
}

func (s *SyncServiceTestSuite) TestSync_ConcurrentRunIsRejected() {
	started := make(chan struct{})
	release := make(chan struct{})
	s.connections.EXPECT().Connection(gomock.Any()).DoAndReturn(
		func(context.Context) (*domain.Connection, error) {
			close(started)
			<-release
			return nil, nil
		},
	)

	done := make(chan error, 1)
	go func() {
		_, err := s.service.Sync(s.ctx)
		done <- err
	}()

	<-started
	_, err := s.service.Sync(s.ctx)
	s.True(errors.Is(err, domain.ErrSyncInProgress))

	close(release)
	s.True(errors.Is(<-done, domain.ErrNotConnected))
}
