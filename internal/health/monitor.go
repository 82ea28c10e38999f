package health

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

const snapshotInterval = 30 * time.Second

// Status is the traffic-light derivation external consumers apply to a
// snapshot.
type Status string

const (
	StatusGreen  Status = "GREEN"
	StatusYellow Status = "YELLOW"
	StatusRed    Status = "RED"
)

// Snapshot is the on-disk health file. Timestamps are unix seconds so
// shell consumers can compare them without date parsing.
type Snapshot struct {
	HeartbeatTS   int64            `json:"heartbeat_ts"`
	SchemaVersion int              `json:"schema_version"`
	WSConnected   map[string]bool  `json:"ws_connected"`
	LastMsgTime   map[string]int64 `json:"last_msg_time"`
	QueueSize     int              `json:"queue_size"`
	QueueDrops    uint64           `json:"queue_drops"`
	LastTradeTime int64            `json:"last_trade_time"`
}

// CollectorState is what the monitor reads off each collector.
type CollectorState interface {
	IsConnected() bool
	LastMsgTime() time.Time
}

// QueueState is what the monitor reads off the writer.
type QueueState interface {
	QueueLen() int
	Drops() uint64
}

// Monitor snapshots pipeline state to a file every 30s via tmp+rename,
// so readers never observe a torn write.
type Monitor struct {
	path          string
	schemaVersion int
	collectors    map[string]CollectorState
	queue         QueueState
}

func NewMonitor(path string, schemaVersion int, collectors map[string]CollectorState, queue QueueState) *Monitor {
	return &Monitor{
		path:          path,
		schemaVersion: schemaVersion,
		collectors:    collectors,
		queue:         queue,
	}
}

// Run writes a snapshot immediately and then on the interval until ctx
// is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.writeOnce()
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.writeOnce()
		}
	}
}

func (m *Monitor) writeOnce() {
	if err := WriteSnapshot(m.path, m.Snapshot()); err != nil {
		log.Warn().Err(err).Str("path", m.path).Msg("health snapshot write failed")
	}
}

// Snapshot assembles the current state.
func (m *Monitor) Snapshot() Snapshot {
	now := time.Now().UTC()
	s := Snapshot{
		HeartbeatTS:   now.Unix(),
		SchemaVersion: m.schemaVersion,
		WSConnected:   make(map[string]bool, len(m.collectors)),
		LastMsgTime:   make(map[string]int64, len(m.collectors)),
	}
	var lastTrade time.Time
	for name, c := range m.collectors {
		s.WSConnected[name] = c.IsConnected()
		last := c.LastMsgTime()
		if !last.IsZero() {
			s.LastMsgTime[name] = last.Unix()
			if last.After(lastTrade) {
				lastTrade = last
			}
		}
	}
	if !lastTrade.IsZero() {
		s.LastTradeTime = lastTrade.Unix()
	}
	if m.queue != nil {
		s.QueueSize = m.queue.QueueLen()
		s.QueueDrops = m.queue.Drops()
	}
	return s
}

// WriteSnapshot persists s atomically: write a sibling tmp file, fsync,
// rename over the target.
func WriteSnapshot(path string, s Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadSnapshot loads the health file.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode health snapshot: %w", err)
	}
	return s, nil
}

// Derive applies the consumer-side traffic-light rules: a stale heartbeat
// is RED; a stale exchange stream, a deep queue or any drop is YELLOW.
func Derive(s Snapshot, now time.Time) Status {
	if now.Unix()-s.HeartbeatTS > 60 {
		return StatusRed
	}
	if stale(s, now, "upbit", 30) || stale(s, now, "bithumb", 120) {
		return StatusYellow
	}
	if s.QueueSize > 10_000 || s.QueueDrops > 0 {
		return StatusYellow
	}
	return StatusGreen
}

func stale(s Snapshot, now time.Time, exchange string, maxAgeSec int64) bool {
	last, ok := s.LastMsgTime[exchange]
	if !ok {
		return false
	}
	return now.Unix()-last > maxAgeSec
}
