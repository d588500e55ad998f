package monitor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	humanize "github.com/dustin/go-humanize"
)

// Aggregator holds the most recent heartbeat per source_id.
type Aggregator struct {
	mu     sync.RWMutex
	latest map[string]Message
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{latest: make(map[string]Message)}
}

// Ingest feeds receiver output into the aggregator until in closes.
func (a *Aggregator) Ingest(in <-chan Message) {
	for msg := range in {
		a.IngestOne(msg)
	}
}

// IngestOne records a single message, for callers that interleave
// ingestion with other select cases instead of dedicating a goroutine
// to Ingest.
func (a *Aggregator) IngestOne(msg Message) {
	a.mu.Lock()
	a.latest[msg.SourceID] = msg
	a.mu.Unlock()
}

// Snapshot returns a stable-ordered copy of the current latest-per-source
// table.
func (a *Aggregator) Snapshot() []Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Message, 0, len(a.latest))
	for _, msg := range a.latest {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Pretty renders the current snapshot as a human-readable table, using
// go-humanize for the age of each heartbeat relative to now.
func (a *Aggregator) Pretty(now float64) string {
	snap := a.Snapshot()
	if len(snap) == 0 {
		return "(no monitor streams seen yet)"
	}
	out := ""
	for _, msg := range snap {
		age := now - msg.At
		out += fmt.Sprintf("%-24s %-16s last_seen=%s ago %s\n",
			msg.Name, msg.Hostname, humanize.FormatFloat("#,###.##", age)+"s", compactJSON(msg.Raw))
	}
	return out
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
