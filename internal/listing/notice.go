package listing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// NoticeType classifies an exchange announcement.
type NoticeType int

const (
	NoticeUnknown NoticeType = iota
	NoticeListing
	NoticeWarning
	NoticeHalt
	NoticeMigration
	NoticeDepeg
)

func (t NoticeType) String() string {
	switch t {
	case NoticeListing:
		return "listing"
	case NoticeWarning:
		return "warning"
	case NoticeHalt:
		return "halt"
	case NoticeMigration:
		return "migration"
	case NoticeDepeg:
		return "depeg"
	default:
		return "unknown"
	}
}

// Severity grades how urgent a notice is.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "CRITICAL"
	case SeverityHigh:
		return "HIGH"
	case SeverityMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// ActionHint is what the pipeline should do with the notice.
type ActionHint int

const (
	ActionNone ActionHint = iota
	ActionMonitor
	ActionAlert
	ActionTrade
)

func (a ActionHint) String() string {
	switch a {
	case ActionTrade:
		return "TRADE"
	case ActionAlert:
		return "ALERT"
	case ActionMonitor:
		return "MONITOR"
	default:
		return "NONE"
	}
}

// Notice is a parsed exchange announcement. The catalog diff stays
// authoritative for listings; notices give earlier pre-detection and
// cover event types the catalog cannot express.
type Notice struct {
	Exchange    string
	Title       string
	Symbols     []string
	ListingTime *time.Time
	Type        NoticeType
	Severity    Severity
	Action      ActionHint
	DedupKey    string
}

var (
	// Symbols appear in parentheses next to the Korean name, e.g.
	// "솔라나(SOL)" or in market form "KRW-SOL".
	symbolParenPattern  = regexp.MustCompile(`\(([A-Z0-9]{2,10})\)`)
	symbolMarketPattern = regexp.MustCompile(`\b(?:KRW|BTC|USDT)-([A-Z0-9]{2,10})\b`)

	// Korean "MM월 DD일 HH:MM" timestamps used in listing schedules.
	koreanTimePattern = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일\s*(\d{1,2})[:시]\s*(\d{2})?`)

	listingWords   = []string{"신규", "상장", "거래지원", "listing", "trading support"}
	warningWords   = []string{"유의", "투자유의", "warning", "caution"}
	haltWords      = []string{"중단", "일시중지", "거래정지", "halt", "suspension", "suspended"}
	migrationWords = []string{"스왑", "이전", "migration", "swap", "mainnet"}
	depegWords     = []string{"디페깅", "depeg", "페깅"}
)

// ParseNotice extracts symbols, schedule and taxonomy from one notice
// title. Unmatched titles come back as NoticeUnknown with no action.
func ParseNotice(exchange, title string, publishedAt time.Time) Notice {
	n := Notice{
		Exchange: exchange,
		Title:    title,
		Symbols:  extractSymbols(title),
		Type:     classify(title),
	}
	n.ListingTime = extractKoreanTime(title, publishedAt)
	n.Severity, n.Action = grade(n.Type, len(n.Symbols) > 0)
	n.DedupKey = dedupKey(exchange, n.Type, title, publishedAt)
	return n
}

func extractSymbols(title string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(sym string) {
		// Parenthesised Korean units and currency codes show up in the
		// same position; drop the obvious non-tickers.
		switch sym {
		case "KRW", "BTC", "USDT", "USD":
			return
		}
		if _, ok := seen[sym]; ok {
			return
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	for _, m := range symbolMarketPattern.FindAllStringSubmatch(title, -1) {
		add(m[1])
	}
	for _, m := range symbolParenPattern.FindAllStringSubmatch(title, -1) {
		add(m[1])
	}
	return out
}

func classify(title string) NoticeType {
	lower := strings.ToLower(title)
	contains := func(words []string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case contains(haltWords):
		return NoticeHalt
	case contains(depegWords):
		return NoticeDepeg
	case contains(migrationWords):
		return NoticeMigration
	case contains(warningWords):
		return NoticeWarning
	case contains(listingWords):
		return NoticeListing
	default:
		return NoticeUnknown
	}
}

func grade(t NoticeType, hasSymbols bool) (Severity, ActionHint) {
	switch t {
	case NoticeListing:
		if hasSymbols {
			return SeverityCritical, ActionTrade
		}
		return SeverityHigh, ActionAlert
	case NoticeHalt, NoticeDepeg:
		return SeverityHigh, ActionAlert
	case NoticeWarning:
		return SeverityMedium, ActionMonitor
	case NoticeMigration:
		return SeverityMedium, ActionMonitor
	default:
		return SeverityLow, ActionNone
	}
}

// extractKoreanTime resolves "MM월 DD일 HH:MM" against the publication
// year in KST. A schedule that appears to be in the past rolls into the
// next year (year-end listings announced in December for January).
func extractKoreanTime(title string, publishedAt time.Time) *time.Time {
	m := koreanTimePattern.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	hour, _ := strconv.Atoi(m[3])
	minute := 0
	if m[4] != "" {
		minute, _ = strconv.Atoi(m[4])
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return nil
	}

	pub := publishedAt.In(kst)
	ts := time.Date(pub.Year(), time.Month(month), day, hour, minute, 0, 0, kst)
	if ts.Before(pub.Add(-24 * time.Hour)) {
		ts = ts.AddDate(1, 0, 0)
	}
	utc := ts.UTC()
	return &utc
}

// dedupKey is stable across re-publishes of the same notice: exchange and
// type plus a hash of the title and its publication hour. Minor edits to
// a title produce a new key, which is the safer failure mode.
func dedupKey(exchange string, t NoticeType, title string, publishedAt time.Time) string {
	h := sha256.Sum256([]byte(title + "|" + publishedAt.UTC().Truncate(time.Hour).Format(time.RFC3339)))
	return fmt.Sprintf("%s:%s:%s", exchange, t, hex.EncodeToString(h[:8]))
}

var kst = time.FixedZone("KST", 9*60*60)
