package linkpreview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thereayou/roomcoord/internal/models"
)

// newTestFetcher разрешает loopback, на котором живут httptest-серверы
func newTestFetcher() *Fetcher {
	return newFetcher(2*time.Second, 1<<20, zap.NewNop(), true)
}

func TestFirstURL(t *testing.T) {
	assert.Equal(t, "https://example.com/a?b=1", FirstURL("look https://example.com/a?b=1, and http://other.test"))
	assert.Equal(t, "http://x.test/path", FirstURL("(see http://x.test/path)"))
	assert.Empty(t, FirstURL("no links here"))
}

func TestFetchOpenGraph(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.UserAgent(), "Mozilla/5.0")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
			<title>Fallback title</title>
			<meta property="og:title" content="OG Title">
			<meta name="twitter:description" content="Tweet description">
			<meta property="og:image" content="/img/cover.png">
		</head><body><meta property="og:title" content="ignored"></body></html>`))
	}))
	defer srv.Close()

	p, ok := newTestFetcher().Fetch(context.Background(), "check "+srv.URL+"/post out")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/post", p.URL)
	assert.Equal(t, "OG Title", p.Title)
	assert.Equal(t, "Tweet description", p.Description)
	assert.Equal(t, srv.URL+"/img/cover.png", p.Image)
}

func TestFetchTitleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Plain &amp; simple</title></head></html>`))
	}))
	defer srv.Close()

	p, ok := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.True(t, ok)
	assert.Equal(t, "Plain & simple", p.Title)
}

func TestFetchFailuresYieldNoPreview(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head></head><body>nothing</body></html>`))
	}))
	defer empty.Close()
	binary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		_, _ = w.Write([]byte{0x50, 0x4b})
	}))
	defer binary.Close()

	f := newTestFetcher()
	for _, text := range []string{notFound.URL, empty.URL, binary.URL, "http://127.0.0.1:1/unreachable", "plain text"} {
		p, ok := f.Fetch(context.Background(), text)
		assert.False(t, ok, text)
		assert.Nil(t, p, text)
	}
}

func TestFetchRefusesInternalAddresses(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>admin panel</title></head></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(2*time.Second, 1<<20, zap.NewNop())
	p, ok := f.Fetch(context.Background(), "see "+srv.URL+"/internal")
	assert.False(t, ok)
	assert.Nil(t, p)

	// отказ происходит на dial, после резолва адреса
	_, err := f.fetchMeta(context.Background(), &url.URL{Scheme: "http", Host: srv.Listener.Addr().String()})
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.Zero(t, hits)
}

func TestPublicAddr(t *testing.T) {
	blocked := []string{"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254", "0.0.0.0", "100.64.0.1", "224.0.0.1", "::1", "fe80::1", "fd00::1", "::ffff:127.0.0.1"}
	for _, raw := range blocked {
		assert.False(t, publicAddr(netip.MustParseAddr(raw)), raw)
	}
	for _, raw := range []string{"93.184.216.34", "1.1.1.1", "2606:4700:4700::1111"} {
		assert.True(t, publicAddr(netip.MustParseAddr(raw)), raw)
	}
}

func TestRedirectLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/again", http.StatusFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher().fetchMeta(context.Background(), &url.URL{Scheme: "http", Host: srv.Listener.Addr().String()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirects")
}

func TestYouTubeID(t *testing.T) {
	cases := map[string]string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                 "dQw4w9WgXcQ",
		"https://m.youtube.com/shorts/dQw4w9WgXcQ":     "dQw4w9WgXcQ",
		"https://youtube.com/embed/dQw4w9WgXcQ?t=10":   "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=short":        "",
		"https://www.youtube.com/channel/UCabcdefghij": "",
		"https://vimeo.com/12345":                      "",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, youtubeID(u), raw)
	}
}

func TestEnrichYouTubeOverridesBoilerplate(t *testing.T) {
	oembed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Query().Get("url"), "dQw4w9WgXcQ"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"title":"Never Gonna Give You Up"}`))
	}))
	defer oembed.Close()

	f := newTestFetcher()
	f.OEmbedEndpoint = oembed.URL

	p := &models.LinkPreview{
		URL:         "https://youtu.be/dQw4w9WgXcQ",
		Title:       "YouTube",
		Description: "Enjoy the videos and music you love, upload original content...",
	}
	f.enrichYouTube(context.Background(), p.URL, "dQw4w9WgXcQ", p)

	assert.Equal(t, "Never Gonna Give You Up", p.Title)
	assert.Empty(t, p.Description)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", p.Image)
}

func TestEnrichYouTubeWithoutOEmbed(t *testing.T) {
	f := newTestFetcher()
	f.OEmbedEndpoint = "http://127.0.0.1:1/oembed"

	p := &models.LinkPreview{URL: "https://youtu.be/dQw4w9WgXcQ", Title: "Song title - YouTube"}
	f.enrichYouTube(context.Background(), p.URL, "dQw4w9WgXcQ", p)

	assert.Equal(t, "Song title", p.Title)
	assert.NotEmpty(t, p.Image)
}
