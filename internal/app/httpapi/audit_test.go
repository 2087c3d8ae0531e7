package httpapi

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/wager_layer/pkg/logger"
)

type brokenJournal struct{ calls int }

func (b *brokenJournal) Append(configChange) error {
	b.calls++
	return errors.New("disk full")
}

func TestChangeLogWrapsAndFilters(t *testing.T) {
	l := newChangeLog(3, nil, logger.Discard())
	for _, field := range []string{"ppv", "host", "ppv", "shares", "ppv"} {
		l.record(configChange{Caller: "owner", Field: field})
	}

	all := l.recent(changeFilter{}, 0)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{all[0].Seq, all[1].Seq, all[2].Seq})

	ppv := l.recent(changeFilter{Field: "ppv"}, 10)
	require.Len(t, ppv, 2)
	assert.Equal(t, uint64(3), ppv[0].Seq)
	assert.Equal(t, uint64(5), ppv[1].Seq)

	assert.Len(t, l.recent(changeFilter{}, 1), 1)
	assert.Equal(t, uint64(5), l.recent(changeFilter{}, 1)[0].Seq)
	assert.Empty(t, l.recent(changeFilter{Caller: "alice"}, 10))
}

func TestChangeLogJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	journal, err := openJournal(path)
	require.NoError(t, err)

	l := newChangeLog(10, journal, logger.Discard())
	l.record(configChange{Caller: "owner", Field: "ppv", Before: "0.01", After: "0.02", Applied: true, Status: 200})
	l.record(configChange{Caller: "alice", Field: "ppv", Before: "0.02", Status: 403, Code: "NOT_OWNER"})

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []configChange
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var c configChange
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &c))
		lines = append(lines, c)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "0.02", lines[0].After)
	assert.Equal(t, "NOT_OWNER", lines[1].Code)
	assert.Nil(t, lines[1].After)

	none, err := openJournal("")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestChangeLogKeepsChangesWhenJournalFails(t *testing.T) {
	journal := &brokenJournal{}
	l := newChangeLog(4, journal, logger.Discard())
	got := l.record(configChange{Field: "host", Applied: true})

	assert.Equal(t, 1, journal.calls)
	assert.Equal(t, uint64(1), got.Seq)
	assert.False(t, got.At.IsZero())
	assert.Len(t, l.recent(changeFilter{Field: "host"}, 0), 1)
}
