package domain

import "time"

// Source identifies one of the two upstream streams.
type Source string

const (
	SourceFacebook  Source = "facebook"
	SourceInstagram Source = "instagram"
)

// Item is a persisted post or media record. FeedItem and MediaItem share this shape;
// MediaType is only populated for Instagram media.
type Item struct {
	ID          int64      `db:"id" json:"id"`
	ExternalID  string     `db:"external_id" json:"externalId"`
	Title       string     `db:"title" json:"title"`
	Body        string     `db:"body" json:"body"`
	Tags        string     `db:"tags" json:"tags"`
	Author      string     `db:"author" json:"author"`
	FeaturedURL string     `db:"featured_url" json:"featured"`
	ImageSize   string     `db:"image_size" json:"imageSize"`
	Permalink   string     `db:"permalink" json:"permalink"`
	MediaType   string     `db:"media_type" json:"mediaType,omitempty"`
	Created     time.Time  `db:"created" json:"created"`
	Updated     *time.Time `db:"updated" json:"updated,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
}

// FeaturedImage is the locally stored copy of an upstream image.
type FeaturedImage struct {
	URL    string
	Width  int
	Height int
}

type SyncState struct {
	ID             int64     `db:"id"`
	SourceID       string    `db:"source_id"`
	LastSyncedAt   time.Time `db:"last_synced_at"`
	LastExternalID string    `db:"last_external_id"`
	TotalSynced    int64     `db:"total_synced"`
}
