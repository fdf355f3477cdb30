package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"catbot/pkg/logx"
)

func TestNeedsTranslation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		lang string
		want bool
	}{
		{"", false},
		{"en", false},
		{"EN", false},
		{"en-US", false},
		{"ru", true},
		{"de", true},
		{" uk ", true},
	}
	for _, tc := range cases {
		if got := needsTranslation(tc.lang); got != tc.want {
			t.Errorf("needsTranslation(%q) = %v, want %v", tc.lang, got, tc.want)
		}
	}
}

func TestClientTranslate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.Form.Get("q") != "hello" || r.Form.Get("target") != "ru" {
			http.Error(w, "unexpected form", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"translatedText": "привет"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logx.Nop())
	if got := c.Translate(context.Background(), "hello", "ru"); got != "привет" {
		t.Fatalf("translate = %q", got)
	}
	// Source-language text is passed through without a request.
	if got := c.Translate(context.Background(), "hello", "en"); got != "hello" {
		t.Fatalf("en passthrough = %q", got)
	}
}

func TestClientFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, logx.Nop())
	if got := c.Translate(context.Background(), "hello", "ru"); got != "hello" {
		t.Fatalf("endpoint failure should fall back to the input, got %q", got)
	}

	// Unreachable endpoint: same fallback.
	dead := NewClient("http://127.0.0.1:1", 200*time.Millisecond, logx.Nop())
	if got := dead.Translate(context.Background(), "hello", "ru"); got != "hello" {
		t.Fatalf("unreachable endpoint should fall back, got %q", got)
	}
}

type memCache struct {
	mu    sync.Mutex
	items map[string]string
	puts  int
}

func key(text, lang string) string { return lang + "\x00" + text }

func (m *memCache) CachedTranslation(_ context.Context, text, lang string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.items[key(text, lang)]
	return v, ok, nil
}

func (m *memCache) PutTranslation(_ context.Context, text, lang, translated string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]string{}
	}
	m.items[key(text, lang)] = translated
	m.puts++
	return nil
}

type countingTranslator struct {
	calls int
	out   string
}

func (c *countingTranslator) Translate(_ context.Context, text, _ string) string {
	c.calls++
	if c.out == "" {
		return text
	}
	return c.out
}

func TestCacheReadThrough(t *testing.T) {
	t.Parallel()

	inner := &countingTranslator{out: "привет"}
	store := &memCache{}
	c := NewCache(inner, store, logx.Nop())
	ctx := context.Background()

	if got := c.Translate(ctx, "hello", "ru"); got != "привет" {
		t.Fatalf("first = %q", got)
	}
	if got := c.Translate(ctx, "hello", "ru"); got != "привет" {
		t.Fatalf("second = %q", got)
	}
	if inner.calls != 1 {
		t.Fatalf("inner translator called %d times, want 1 (cache hit)", inner.calls)
	}
	if store.puts != 1 {
		t.Fatalf("cache writes = %d, want 1", store.puts)
	}
}

func TestCacheSkipsFallbackResults(t *testing.T) {
	t.Parallel()

	inner := &countingTranslator{} // echoes the input (translation failed)
	store := &memCache{}
	c := NewCache(inner, store, logx.Nop())

	if got := c.Translate(context.Background(), "hello", "ru"); got != "hello" {
		t.Fatalf("fallback = %q", got)
	}
	if store.puts != 0 {
		t.Fatal("a fallback result must not be cached")
	}
}
