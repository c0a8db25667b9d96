package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const languagesCacheKey = "image2doc:languages"

// FallbackLanguages is served when the backend cannot be reached and the
// cache is cold.
var FallbackLanguages = []string{"eng", "spa"}

// LanguageSource fetches the installed OCR language packs, caching them in
// Redis when a cache client is configured. A nil cache disables caching.
type LanguageSource struct {
	client *Client
	cache  *redis.Client
	ttl    time.Duration
}

// NewLanguageSource builds a LanguageSource. cache may be nil.
func NewLanguageSource(client *Client, cache *redis.Client, ttl time.Duration) *LanguageSource {
	return &LanguageSource{client: client, cache: cache, ttl: ttl}
}

// Languages returns the available language codes. The "osd" pseudo-language
// used for orientation detection is filtered out. Errors degrade to the
// fallback list; the presenter layer decides whether to surface them.
func (s *LanguageSource) Languages(ctx context.Context) ([]string, error) {
	if langs, ok := s.fromCache(ctx); ok {
		return langs, nil
	}
	langs, err := s.client.Languages(ctx)
	if err != nil {
		return FallbackLanguages, err
	}
	s.toCache(ctx, langs)
	return langs, nil
}

func (s *LanguageSource) fromCache(ctx context.Context) ([]string, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, languagesCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.client.log.Warn().Err(err).Msg("language cache read failed")
		}
		return nil, false
	}
	var langs []string
	if err := json.Unmarshal([]byte(raw), &langs); err != nil {
		return nil, false
	}
	return langs, true
}

func (s *LanguageSource) toCache(ctx context.Context, langs []string) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(langs)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, languagesCacheKey, raw, s.ttl).Err(); err != nil {
		s.client.log.Warn().Err(err).Msg("language cache write failed")
	}
}

type languagesResponse struct {
	Languages []string `json:"languages"`
}

// Languages calls GET /api/languages and filters the orientation-detection
// entry.
func (c *Client) Languages(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/languages", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", ErrServer, resp.Status)
	}
	var payload languagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	langs := make([]string, 0, len(payload.Languages))
	for _, l := range payload.Languages {
		if l == "osd" {
			continue
		}
		langs = append(langs, l)
	}
	return langs, nil
}
