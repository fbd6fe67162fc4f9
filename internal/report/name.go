package report

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

var pathSafe = strings.NewReplacer(":", "-", ".", "-")

// ObjectName returns the storage name for a report written at t, e.g.
// report-2024-05-01T12-00-00-000Z-1714564800000.json.
func ObjectName(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("report-%s-%d.json", pathSafe.Replace(t.Format(isoMillis)), t.UnixMilli())
}

// Namer hands out object names that never repeat within a process, even when
// the clock has not advanced a full millisecond between calls.
type Namer struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewNamer creates a Namer reading the given clock. A nil clock uses time.Now.
func NewNamer(now func() time.Time) *Namer {
	if now == nil {
		now = time.Now
	}
	return &Namer{now: now}
}

// Next returns a fresh object name.
func (n *Namer) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	t := n.now().UTC().Truncate(time.Millisecond)
	if !t.After(n.last) {
		t = n.last.Add(time.Millisecond)
	}
	n.last = t
	return ObjectName(t)
}
