// Package featured turns upstream post images into locally stored WebP copies.
package featured

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"social_feed/internal/blob"
	"social_feed/internal/domain"
)

const (
	Ext  = ".webp"
	Mime = "image/webp"
)

// Uploader is the part of blob.Store the pipeline needs.
type Uploader interface {
	Upload(ctx context.Context, f *blob.File) (string, error)
}

// Config holds image pipeline configuration.
type Config struct {
	MaxDimension int
	Quality      int
	Folder       string
	FetchTimeout time.Duration
	MaxBytes     int64
	PublicURL    string
}

type Pipeline struct {
	httpClient *http.Client
	store      Uploader
	cfg        Config
	baseURL    *url.URL
	logger     *slog.Logger
}

// New creates an image pipeline. An unparsable PublicURL is rejected so that
// relative blob URLs can always be resolved.
func New(cfg Config, store Uploader, logger *slog.Logger) (*Pipeline, error) {
	var base *url.URL
	if cfg.PublicURL != "" {
		u, err := url.Parse(cfg.PublicURL)
		if err != nil {
			return nil, fmt.Errorf("parse public url: %w", err)
		}
		base = u
	}

	return &Pipeline{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		store:      store,
		cfg:        cfg,
		baseURL:    base,
		logger:     logger.With("component", "featured"),
	}, nil
}

// Enrich fetches sourceURL, normalizes orientation, bounds its size, encodes it
// as WebP and stores it under name. Every failure is an *domain.EnrichmentError.
func (p *Pipeline) Enrich(ctx context.Context, sourceURL, name string) (*domain.FeaturedImage, error) {
	start := time.Now()

	data, err := p.fetch(ctx, sourceURL)
	if err != nil {
		return nil, &domain.EnrichmentError{URL: sourceURL, Err: err}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &domain.EnrichmentError{URL: sourceURL, Err: fmt.Errorf("decode image: %w", err)}
	}

	img = p.fit(img)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(p.cfg.Quality)}); err != nil {
		return nil, &domain.EnrichmentError{URL: sourceURL, Err: fmt.Errorf("encode webp: %w", err)}
	}

	sum := sha256.Sum256(buf.Bytes())
	location, err := p.store.Upload(ctx, &blob.File{
		Path:   p.cfg.Folder,
		Name:   name,
		Ext:    Ext,
		Mime:   Mime,
		Hash:   hex.EncodeToString(sum[:]),
		Buffer: buf.Bytes(),
	})
	if err != nil {
		return nil, &domain.EnrichmentError{URL: sourceURL, Err: fmt.Errorf("store image: %w", err)}
	}

	bounds := img.Bounds()
	result := &domain.FeaturedImage{
		URL:    p.resolve(location),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	p.logger.Debug("stored featured image",
		"name", name,
		"width", result.Width,
		"height", result.Height,
		"bytes", buf.Len(),
		"duration", time.Since(start),
	)

	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", "SocialFeed/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > p.cfg.MaxBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", p.cfg.MaxBytes)
	}
	return data, nil
}

// fit bounds the image to MaxDimension on its longest side, never upscaling.
func (p *Pipeline) fit(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= p.cfg.MaxDimension && b.Dy() <= p.cfg.MaxDimension {
		return img
	}
	return imaging.Fit(img, p.cfg.MaxDimension, p.cfg.MaxDimension, imaging.Lanczos)
}

func (p *Pipeline) resolve(location string) string {
	u, err := url.Parse(location)
	if err != nil || u.IsAbs() || p.baseURL == nil {
		return location
	}
	return p.baseURL.ResolveReference(u).String()
}
