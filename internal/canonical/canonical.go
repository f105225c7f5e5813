// Package canonical turns free-text links into classified canonical requests.
package canonical

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkloader/internal/media"
)

const defaultProbeTimeout = 5 * time.Second

// Config controls the redirect probe.
type Config struct {
	ProbeTimeout time.Duration
	UserAgent    string
	Sources      []Source
}

// Canonicalizer extracts, resolves, normalizes and classifies links.
type Canonicalizer struct {
	client *http.Client
	cfg    Config
	logger *zap.Logger
}

// New constructs a Canonicalizer. A nil client gets a default one.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Canonicalizer {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Canonicalizer{client: client, cfg: cfg, logger: logger}
}

// Extract returns the first supported link in text. The earliest match in the
// text wins across sources.
func (c *Canonicalizer) Extract(text string) (string, bool) {
	best, bestPos := "", -1
	for _, src := range c.cfg.Sources {
		loc := src.Pattern.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestPos == -1 || loc[0] < bestPos {
			best, bestPos = text[loc[0]:loc[1]], loc[0]
		}
	}
	return best, bestPos >= 0
}

// Canonicalize resolves redirects and builds the immutable request. A failed
// probe degrades to the original URL and is never returned as an error.
func (c *Canonicalizer) Canonicalize(ctx context.Context, rawURL, requesterID string) (media.CanonicalRequest, error) {
	resolved, err := c.Resolve(ctx, rawURL)
	if err != nil {
		c.logger.Warn("redirect probe failed, using original url",
			zap.String("url", rawURL), zap.Error(err))
	}
	canonicalURL, err := Normalize(resolved, c.cfg.Sources)
	if err != nil {
		return media.CanonicalRequest{}, fmt.Errorf("normalize %q: %w", resolved, err)
	}
	return media.CanonicalRequest{
		RawURL:       rawURL,
		CanonicalURL: canonicalURL,
		Kind:         Classify(canonicalURL),
		RequesterID:  requesterID,
	}, nil
}

// Resolve follows the redirect chain with a HEAD request. On failure it
// returns rawURL together with an error wrapping media.ErrResolutionDegraded.
func (c *Canonicalizer) Resolve(ctx context.Context, rawURL string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return rawURL, errors.Join(media.ErrResolutionDegraded, fmt.Errorf("new request: %w", err))
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return rawURL, errors.Join(media.ErrResolutionDegraded, fmt.Errorf("head request: %w", err))
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close probe body", zap.Error(cerr))
		}
	}()
	if resp.Request == nil || resp.Request.URL == nil {
		return rawURL, nil
	}
	return resp.Request.URL.String(), nil
}
