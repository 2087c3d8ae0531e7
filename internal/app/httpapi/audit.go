package httpapi

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

// configChange records one admin attempt to change a protocol setting. Before
// and After hold the field's value as GET /v1/admin/config renders it; After
// is only set when the change was applied.
type configChange struct {
	Seq     uint64      `json:"seq"`
	At      time.Time   `json:"at"`
	Caller  string      `json:"caller"`
	Field   string      `json:"field"`
	Before  interface{} `json:"before,omitempty"`
	After   interface{} `json:"after,omitempty"`
	Applied bool        `json:"applied"`
	Status  int         `json:"status"`
	Code    string      `json:"code,omitempty"`
	TraceID string      `json:"trace_id,omitempty"`
}

// changeFilter selects changes for listing; empty fields match everything.
type changeFilter struct {
	Field  string
	Caller string
}

func (f changeFilter) match(c configChange) bool {
	return (f.Field == "" || c.Field == f.Field) && (f.Caller == "" || c.Caller == f.Caller)
}

// changeJournal persists config changes beyond the in-memory window.
type changeJournal interface {
	Append(c configChange) error
}

// changeLog keeps the most recent config changes in a fixed ring.
type changeLog struct {
	mu      sync.Mutex
	ring    []configChange
	next    int
	full    bool
	seq     uint64
	journal changeJournal
	log     *logger.Logger
}

func newChangeLog(capacity int, journal changeJournal, log *logger.Logger) *changeLog {
	if capacity <= 0 {
		capacity = 200
	}
	return &changeLog{ring: make([]configChange, capacity), journal: journal, log: log}
}

// record stamps c with the next sequence number and stores it.
func (l *changeLog) record(c configChange) configChange {
	l.mu.Lock()
	l.seq++
	c.Seq = l.seq
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	l.ring[l.next] = c
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	if l.journal != nil {
		if err := l.journal.Append(c); err != nil {
			l.log.WithError(err).WithField("seq", c.Seq).WithField("field", c.Field).Error("config change not journaled")
		}
	}
	return c
}

// recent returns up to limit matching changes, oldest first.
func (l *changeLog) recent(f changeFilter, limit int) []configChange {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.ring) {
		limit = len(l.ring)
	}
	out := make([]configChange, 0, limit)
	n := l.next
	if l.full {
		n = len(l.ring)
	}
	for i := 1; i <= n && len(out) < limit; i++ {
		c := l.ring[(l.next-i+len(l.ring))%len(l.ring)]
		if f.match(c) {
			out = append(out, c)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// jsonlJournal appends config changes to a file, one JSON object per line.
type jsonlJournal struct {
	mu   sync.Mutex
	file *os.File
}

// openJournal returns a nil journal when path is empty.
func openJournal(path string) (changeJournal, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &jsonlJournal{file: f}, nil
}

func (j *jsonlJournal) Append(c configChange) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.file.Write(append(b, '\n'))
	return err
}
