package listing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedNotices struct {
	exchange string
	pages    [][]RawNotice
	errs     []error
	calls    int
}

func (s *scriptedNotices) Exchange() string { return s.exchange }

func (s *scriptedNotices) FetchNotices(context.Context) ([]RawNotice, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.pages) {
		return s.pages[len(s.pages)-1], nil
	}
	return s.pages[i], nil
}

func TestNoticePoller_FirstSweepOnlySeeds(t *testing.T) {
	now := time.Now().UTC()
	board := []RawNotice{
		{Title: "솔라나(SOL) 원화 마켓 신규 상장", PublishedAt: now},
		{Title: "시스템 점검 안내", PublishedAt: now},
	}
	src := &scriptedNotices{exchange: "upbit", pages: [][]RawNotice{board, board}}

	var fired []Notice
	p := NewNoticePoller([]NoticeSource{src}, time.Hour, func(_ context.Context, n Notice) {
		fired = append(fired, n)
	})

	p.poll(context.Background())
	assert.Empty(t, fired, "seeding sweep must not alert")

	p.poll(context.Background())
	assert.Empty(t, fired, "unchanged board stays silent")
}

func TestNoticePoller_NewNoticeFiresOnce(t *testing.T) {
	now := time.Now().UTC()
	old := []RawNotice{{Title: "시스템 점검 안내", PublishedAt: now}}
	fresh := append([]RawNotice{
		{Title: "페페(PEPE) 원화 마켓 신규 상장", PublishedAt: now},
	}, old...)
	src := &scriptedNotices{exchange: "bithumb", pages: [][]RawNotice{old, fresh, fresh}}

	var fired []Notice
	p := NewNoticePoller([]NoticeSource{src}, time.Hour, func(_ context.Context, n Notice) {
		fired = append(fired, n)
	})

	p.poll(context.Background())
	p.poll(context.Background())
	require.Len(t, fired, 1)
	assert.Equal(t, NoticeListing, fired[0].Type)
	assert.Equal(t, []string{"PEPE"}, fired[0].Symbols)
	assert.Equal(t, ActionTrade, fired[0].Action)

	p.poll(context.Background())
	assert.Len(t, fired, 1, "repeat of the same notice is deduplicated")
}

func TestNoticePoller_NoActionNoticesStaySilent(t *testing.T) {
	now := time.Now().UTC()
	src := &scriptedNotices{exchange: "upbit", pages: [][]RawNotice{
		{},
		{{Title: "거래소 이용 안내", PublishedAt: now}},
	}}

	var fired []Notice
	p := NewNoticePoller([]NoticeSource{src}, time.Hour, func(_ context.Context, n Notice) {
		fired = append(fired, n)
	})

	p.poll(context.Background())
	p.poll(context.Background())
	assert.Empty(t, fired)
}

func TestNoticePoller_FailedSeedDoesNotArm(t *testing.T) {
	now := time.Now().UTC()
	board := []RawNotice{{Title: "도지코인(DOGE) 신규 상장", PublishedAt: now}}
	src := &scriptedNotices{
		exchange: "upbit",
		pages:    [][]RawNotice{nil, board, board},
		errs:     []error{context.DeadlineExceeded},
	}

	var fired []Notice
	p := NewNoticePoller([]NoticeSource{src}, time.Hour, func(_ context.Context, n Notice) {
		fired = append(fired, n)
	})

	p.poll(context.Background())
	require.Empty(t, fired, "failed sweep must not arm the poller")

	p.poll(context.Background())
	assert.Empty(t, fired, "first successful sweep seeds instead of firing")
}
