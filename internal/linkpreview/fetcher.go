package linkpreview

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/thereayou/roomcoord/internal/metrics"
	"github.com/thereayou/roomcoord/internal/models"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	youtubeOEmbed    = "https://www.youtube.com/oembed"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// Fetcher обогащает сообщение превью первой ссылки. Любая ошибка означает "без превью".
type Fetcher struct {
	client         *http.Client
	maxBytes       int64
	OEmbedEndpoint string
	log            *zap.Logger
}

// NewFetcher ходит только на публично маршрутизируемые адреса.
func NewFetcher(timeout time.Duration, maxBytes int64, log *zap.Logger) *Fetcher {
	return newFetcher(timeout, maxBytes, log, false)
}

func newFetcher(timeout time.Duration, maxBytes int64, log *zap.Logger, allowPrivate bool) *Fetcher {
	return &Fetcher{
		client:         newHTTPClient(timeout, allowPrivate),
		maxBytes:       maxBytes,
		OEmbedEndpoint: youtubeOEmbed,
		log:            log.Named("linkpreview"),
	}
}

// FirstURL возвращает первую ссылку из текста без хвостовой пунктуации.
func FirstURL(text string) string {
	raw := urlPattern.FindString(text)
	return strings.TrimRight(raw, ".,;:!?)]}")
}

func (f *Fetcher) Fetch(ctx context.Context, text string) (*models.LinkPreview, bool) {
	raw := FirstURL(text)
	if raw == "" {
		return nil, false
	}
	pageURL, err := url.Parse(raw)
	if err != nil || pageURL.Host == "" {
		return nil, false
	}

	preview := &models.LinkPreview{URL: raw}
	meta, err := f.fetchMeta(ctx, pageURL)
	if err != nil {
		f.log.Debug("page_fetch_failed", zap.String("url", raw), zap.Error(err))
	} else {
		preview.Title = meta.title()
		preview.Description = meta.description()
		preview.Image = resolve(pageURL, meta.image())
	}

	if id := youtubeID(pageURL); id != "" {
		f.enrichYouTube(ctx, raw, id, preview)
	}

	if preview.Title == "" && preview.Description == "" && preview.Image == "" {
		if err != nil {
			metrics.LinkPreviews.WithLabelValues("error").Inc()
		} else {
			metrics.LinkPreviews.WithLabelValues("empty").Inc()
		}
		return nil, false
	}
	metrics.LinkPreviews.WithLabelValues("ok").Inc()
	return preview, true
}

func (f *Fetcher) fetchMeta(ctx context.Context, u *url.URL) (pageMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("not html: %s", ct)
	}

	return parseMeta(io.LimitReader(resp.Body, f.maxBytes)), nil
}

func (f *Fetcher) enrichYouTube(ctx context.Context, raw, id string, p *models.LinkPreview) {
	p.Image = "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg"

	p.Title = strings.TrimSpace(strings.TrimSuffix(p.Title, "- YouTube"))
	if strings.EqualFold(p.Title, "YouTube") {
		p.Title = ""
	}
	if isYouTubeBoilerplate(p.Description) {
		p.Description = ""
	}

	title, err := f.oembedTitle(ctx, raw)
	if err != nil {
		f.log.Debug("oembed_failed", zap.String("video", id), zap.Error(err))
		return
	}
	if title != "" {
		p.Title = title
	}
}

func (f *Fetcher) oembedTitle(ctx context.Context, raw string) (string, error) {
	endpoint := f.OEmbedEndpoint + "?format=json&url=" + url.QueryEscape(raw)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed status %d", resp.StatusCode)
	}

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil {
		return "", err
	}
	return strings.TrimSpace(body.Title), nil
}

func isYouTubeBoilerplate(desc string) bool {
	d := strings.ToLower(desc)
	return strings.HasPrefix(d, "enjoy the videos and music you love") ||
		strings.Contains(d, "share your videos with friends, family, and the world")
}

var youtubeIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func youtubeID(u *url.URL) string {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	var id string

	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			id = u.Query().Get("v")
			break
		}
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) == 2 && (parts[0] == "shorts" || parts[0] == "embed" || parts[0] == "live") {
			id = parts[1]
		}
	}

	if !youtubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

// pageMeta значения meta-тегов по ключу property/name, плюс "<title>".
type pageMeta map[string]string

func (m pageMeta) first(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(m[k]); v != "" {
			return v
		}
	}
	return ""
}

func (m pageMeta) title() string {
	return m.first("og:title", "twitter:title", "<title>")
}

func (m pageMeta) description() string {
	return m.first("og:description", "twitter:description", "description")
}

func (m pageMeta) image() string {
	return m.first("og:image", "og:image:url", "twitter:image", "twitter:image:src")
}

func parseMeta(r io.Reader) pageMeta {
	meta := pageMeta{}
	z := html.NewTokenizer(r)
	inTitle := false

	for {
		switch z.Next() {
		case html.ErrorToken:
			return meta
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			switch t.Data {
			case "meta":
				var key, content string
				for _, a := range t.Attr {
					switch strings.ToLower(a.Key) {
					case "property", "name":
						key = strings.ToLower(a.Val)
					case "content":
						content = a.Val
					}
				}
				if key != "" && meta[key] == "" {
					meta[key] = content
				}
			case "title":
				inTitle = true
			case "body":
				return meta
			}
		case html.TextToken:
			if inTitle && meta["<title>"] == "" {
				meta["<title>"] = string(z.Text())
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "title":
				inTitle = false
			case "head":
				return meta
			}
		}
	}
}
