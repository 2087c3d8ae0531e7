package system

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	name    string
	log     *[]string
	failing bool
}

func (r recorded) Name() string { return r.name }

func (r recorded) Start(context.Context) error {
	if r.failing {
		return errors.New("boom")
	}
	*r.log = append(*r.log, "start "+r.name)
	return nil
}

func (r recorded) Stop(context.Context) error {
	*r.log = append(*r.log, "stop "+r.name)
	return nil
}

func TestManagerOrdersLifecycle(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recorded{name: "a", log: &log}))
	require.NoError(t, m.Register(recorded{name: "b", log: &log}))
	require.NoError(t, m.Register(NoopService{ServiceName: "noop"}))
	assert.Error(t, m.Register(recorded{name: "a", log: &log}))
	assert.Equal(t, []string{"a", "b", "noop"}, m.Services())

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Register(recorded{name: "late", log: &log}))
	require.NoError(t, m.Stop(context.Background()))
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	require.NoError(t, m.Register(recorded{name: "a", log: &log}))
	require.NoError(t, m.Register(recorded{name: "bad", log: &log, failing: true}))

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start bad")
	assert.Equal(t, []string{"start a", "stop a"}, log)
}
