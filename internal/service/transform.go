package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"social_feed/internal/domain"
	"social_feed/internal/graph"
)

const (
	defaultTitle   = "No title"
	maxTitleRunes  = 255
	emptyImageSize = "0x0"
)

var tagPattern = regexp.MustCompile(`:\w+`)

// candidate is an upstream entry mapped to a record, before enrichment.
type candidate struct {
	item     domain.Item
	imageURL string
}

func deriveTitle(body string) string {
	title, _, _ := strings.Cut(body, "\n")
	if title == "" {
		return defaultTitle
	}
	if utf8.RuneCountInString(title) > maxTitleRunes {
		title = string([]rune(title)[:maxTitleRunes])
	}
	return title
}

func extractTags(body string) string {
	return strings.Join(tagPattern.FindAllString(body, -1), ",")
}

func splitTags(tags string) []string {
	if tags == "" {
		return nil
	}
	return strings.Split(tags, ",")
}

func fromPost(p graph.Post, pageName string) candidate {
	author := pageName
	if p.From != nil && p.From.Name != "" {
		author = p.From.Name
	}

	item := domain.Item{
		ExternalID: p.ID,
		Title:      deriveTitle(p.Message),
		Body:       p.Message,
		Tags:       extractTags(p.Message),
		Author:     author,
		ImageSize:  emptyImageSize,
		Permalink:  p.PermalinkURL,
		Created:    p.CreatedTime.Time,
	}
	if !p.UpdatedTime.IsZero() {
		updated := p.UpdatedTime.Time
		item.Updated = &updated
	}

	return candidate{item: item, imageURL: p.FullPicture}
}

func fromMedia(m graph.Media, pageName string) candidate {
	author := m.Username
	if author == "" {
		author = pageName
	}

	return candidate{
		item: domain.Item{
			ExternalID: m.ID,
			Title:      deriveTitle(m.Caption),
			Body:       m.Caption,
			Tags:       extractTags(m.Caption),
			Author:     author,
			ImageSize:  emptyImageSize,
			Permalink:  m.Permalink,
			MediaType:  m.MediaType,
			Created:    m.Timestamp.Time,
		},
		imageURL: m.ImageURL(),
	}
}
