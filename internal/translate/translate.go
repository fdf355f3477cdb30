// Package translate localizes outgoing notification text. Translation is
// strictly best effort: any failure falls back to the original text and
// never aborts a delivery.
package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catbot/pkg/logx"
)

// Translator renders text for a target language. Implementations must not
// return an error path to callers; the fallback is the input text.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) string
}

// Noop returns the input unchanged. Used when translation is disabled.
type Noop struct{}

func (Noop) Translate(_ context.Context, text, _ string) string { return text }

// needsTranslation reports whether the language is anything other than the
// catalog's source language.
func needsTranslation(lang string) bool {
	l := strings.ToLower(strings.TrimSpace(lang))
	return l != "" && l != "en" && !strings.HasPrefix(l, "en-")
}

// Client calls a LibreTranslate-compatible endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	log      logx.Logger
}

func NewClient(endpoint string, timeout time.Duration, log logx.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     &http.Client{Timeout: timeout},
		log:      log,
	}
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) string {
	if c == nil || c.endpoint == "" || text == "" || !needsTranslation(targetLang) {
		return text
	}

	form := url.Values{
		"q":      {text},
		"source": {"en"},
		"target": {targetLang},
		"format": {"text"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return text
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("translation request failed", logx.String("lang", targetLang), logx.Err(err))
		return text
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		c.log.Debug("translation endpoint error", logx.String("lang", targetLang), logx.Int("status", resp.StatusCode))
		return text
	}

	var out struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || strings.TrimSpace(out.TranslatedText) == "" {
		return text
	}
	return out.TranslatedText
}

// Cache is a read-through decorator over a persistent translation cache.
type Cache struct {
	next  Translator
	store CacheStore
	log   logx.Logger
}

// CacheStore is the persistence the cache decorator needs.
type CacheStore interface {
	CachedTranslation(ctx context.Context, text, targetLang string) (string, bool, error)
	PutTranslation(ctx context.Context, text, targetLang, translated string, at time.Time) error
}

func NewCache(next Translator, store CacheStore, log logx.Logger) *Cache {
	return &Cache{next: next, store: store, log: log}
}

func (c *Cache) Translate(ctx context.Context, text, targetLang string) string {
	if text == "" || !needsTranslation(targetLang) {
		return text
	}
	if cached, ok, err := c.store.CachedTranslation(ctx, text, targetLang); err == nil && ok {
		return cached
	} else if err != nil {
		c.log.Debug("translation cache read failed", logx.Err(err))
	}

	out := c.next.Translate(ctx, text, targetLang)
	if out != text {
		if err := c.store.PutTranslation(ctx, text, targetLang, out, time.Now()); err != nil {
			c.log.Debug("translation cache write failed", logx.Err(err))
		}
	}
	return out
}
