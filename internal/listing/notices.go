package listing

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// RawNotice is one announcement as fetched from a venue, before parsing.
type RawNotice struct {
	Title       string
	PublishedAt time.Time
}

// NoticeSource fetches the latest announcements from one venue.
type NoticeSource interface {
	Exchange() string
	FetchNotices(ctx context.Context) ([]RawNotice, error)
}

// UpbitNotices reads the announcement API used by the Upbit web frontend.
type UpbitNotices struct {
	client *http.Client
	url    string
}

func NewUpbitNotices(timeout time.Duration) *UpbitNotices {
	return &UpbitNotices{
		client: &http.Client{Timeout: timeout},
		url:    "https://api-manager.upbit.com/api/v1/announcements?os=web&page=1&per_page=20&category=trade",
	}
}

func (u *UpbitNotices) Exchange() string { return "upbit" }

func (u *UpbitNotices) FetchNotices(ctx context.Context) ([]RawNotice, error) {
	body, err := getBody(ctx, u.client, u.url)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Notices []struct {
				Title     string    `json:"title"`
				ListedAt  time.Time `json:"listed_at"`
				CreatedAt time.Time `json:"created_at"`
			} `json:"notices"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode upbit notices: %w", err)
	}
	if !payload.Success {
		return nil, fmt.Errorf("upbit notices: success=false")
	}
	out := make([]RawNotice, 0, len(payload.Data.Notices))
	for _, n := range payload.Data.Notices {
		at := n.ListedAt
		if at.IsZero() {
			at = n.CreatedAt
		}
		out = append(out, RawNotice{Title: n.Title, PublishedAt: at})
	}
	return out, nil
}

// BithumbNotices scrapes the public notice board. The page is
// server-rendered; titles sit in anchor tags under the board list.
type BithumbNotices struct {
	client *http.Client
	url    string
}

var bithumbTitlePattern = regexp.MustCompile(`(?s)<a[^>]+class="[^"]*notice[^"]*title[^"]*"[^>]*>\s*(.*?)\s*</a>|<td class="one-line">\s*<a[^>]*>\s*(.*?)\s*</a>`)

func NewBithumbNotices(timeout time.Duration) *BithumbNotices {
	return &BithumbNotices{
		client: &http.Client{Timeout: timeout},
		url:    "https://feed.bithumb.com/notice",
	}
}

func (b *BithumbNotices) Exchange() string { return "bithumb" }

func (b *BithumbNotices) FetchNotices(ctx context.Context) ([]RawNotice, error) {
	body, err := getBody(ctx, b.client, b.url)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	var out []RawNotice
	for _, m := range bithumbTitlePattern.FindAllStringSubmatch(string(body), -1) {
		title := m[1]
		if title == "" {
			title = m[2]
		}
		if title == "" {
			continue
		}
		// The board omits precise timestamps on the list page; the
		// publication hour only feeds the dedup key, so poll time is
		// close enough.
		out = append(out, RawNotice{Title: html.UnescapeString(title), PublishedAt: now})
	}
	return out, nil
}

// NoticeHandler consumes one parsed, deduplicated notice.
type NoticeHandler func(ctx context.Context, n Notice)

// NoticePoller polls notice boards ahead of the catalog diff. It is a
// companion path: the catalog diff stays authoritative for listings, the
// poller buys pre-detection time and covers halts, warnings, migrations
// and depegs that never show up in the catalog.
type NoticePoller struct {
	sources []NoticeSource
	limiter *rate.Limiter
	handler NoticeHandler

	seen   map[string]struct{}
	seeded bool
}

func NewNoticePoller(sources []NoticeSource, interval time.Duration, handler NoticeHandler) *NoticePoller {
	return &NoticePoller{
		sources: sources,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		handler: handler,
		seen:    make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled. The first successful sweep only
// seeds the seen set so a restart does not replay the whole board.
func (p *NoticePoller) Run(ctx context.Context) {
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		p.poll(ctx)
	}
}

func (p *NoticePoller) poll(ctx context.Context) {
	anyOK := false
	for _, src := range p.sources {
		raws, err := src.FetchNotices(ctx)
		if err != nil {
			log.Debug().Err(err).Str("exchange", src.Exchange()).Msg("notice fetch failed")
			continue
		}
		anyOK = true
		for _, raw := range raws {
			n := ParseNotice(src.Exchange(), raw.Title, raw.PublishedAt)
			if _, dup := p.seen[n.DedupKey]; dup {
				continue
			}
			p.seen[n.DedupKey] = struct{}{}
			if !p.seeded || n.Action == ActionNone {
				continue
			}
			p.handler(ctx, n)
		}
	}
	if anyOK {
		p.seeded = true
	}
}
