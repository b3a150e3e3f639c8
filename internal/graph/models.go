package graph

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Page is one page of a Graph API edge listing.
type Page[T any] struct {
	Data   []T     `json:"data"`
	Paging *Paging `json:"paging,omitempty"`
}

// NextURL returns the cursor URL of the following page, or "" on the last page.
func (p *Page[T]) NextURL() string {
	if p == nil || p.Paging == nil {
		return ""
	}
	return p.Paging.Next
}

type Paging struct {
	Cursors *Cursors `json:"cursors,omitempty"`
	Next    string   `json:"next,omitempty"`
}

type Cursors struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// Post is a Facebook page feed entry.
type Post struct {
	ID           string       `json:"id"`
	CreatedTime  Time         `json:"created_time"`
	UpdatedTime  Time         `json:"updated_time"`
	From         *Profile     `json:"from,omitempty"`
	FullPicture  string       `json:"full_picture"`
	Message      string       `json:"message"`
	PermalinkURL string       `json:"permalink_url"`
	Attachments  *Attachments `json:"attachments,omitempty"`
}

type Profile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Attachments struct {
	Data []Attachment `json:"data"`
}

type Attachment struct {
	Type  string           `json:"type"`
	Media *AttachmentMedia `json:"media,omitempty"`
}

type AttachmentMedia struct {
	Image *Image `json:"image,omitempty"`
}

type Image struct {
	Src    string `json:"src"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Media is an Instagram business account media object.
type Media struct {
	ID           string `json:"id"`
	Caption      string `json:"caption"`
	MediaType    string `json:"media_type"`
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Timestamp    Time   `json:"timestamp"`
	Username     string `json:"username"`
	Permalink    string `json:"permalink"`
}

// ImageURL prefers the video thumbnail over the media URL.
func (m Media) ImageURL() string {
	if m.ThumbnailURL != "" {
		return m.ThumbnailURL
	}
	return m.MediaURL
}

// Account is an entry of the /{user-id}/accounts edge.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	Category    string `json:"category"`
}

// Token is the response of the token exchange endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type linkedAccountResponse struct {
	ID                     string `json:"id"`
	InstagramBusinessAccnt *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account,omitempty"`
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// Time accepts the Graph API's "+0000" offset form as well as RFC 3339.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02T15:04:05-0700",
	time.RFC3339,
}

func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("parse graph time %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(timeLayouts[0]))
}
