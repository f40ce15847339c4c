package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	calls   []string
	steps   int
	forced  int
	version uint
	dirty   bool
	err     error
	closed  bool
}

func (f *fakeMigrator) Up() error         { f.calls = append(f.calls, "up"); return f.err }
func (f *fakeMigrator) Down() error       { f.calls = append(f.calls, "down"); return f.err }
func (f *fakeMigrator) Steps(n int) error { f.calls = append(f.calls, "steps"); f.steps = n; return f.err }
func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, f.dirty, f.err
}
func (f *fakeMigrator) Force(v int) error { f.calls = append(f.calls, "force"); f.forced = v; return f.err }
func (f *fakeMigrator) Close() error      { f.closed = true; return nil }

func run(t *testing.T, f *fakeMigrator, args ...string) (string, error) {
	t.Helper()
	orig := openMigrator
	openMigrator = func() (migrator, error) { return f, nil }
	t.Cleanup(func() { openMigrator = orig })

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUp(t *testing.T) {
	f := &fakeMigrator{}
	out, err := run(t, f, "up")
	require.NoError(t, err)
	assert.Equal(t, []string{"up"}, f.calls)
	assert.Contains(t, out, "Migrations applied successfully")
	assert.True(t, f.closed)
}

func TestUpSteps(t *testing.T) {
	f := &fakeMigrator{}
	_, err := run(t, f, "up", "--steps", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"steps"}, f.calls)
	assert.Equal(t, 1, f.steps)
}

func TestDownSteps(t *testing.T) {
	f := &fakeMigrator{}
	_, err := run(t, f, "down", "--steps", "2")
	require.NoError(t, err)
	assert.Equal(t, -2, f.steps)

	f = &fakeMigrator{}
	out, err := run(t, f, "down")
	require.NoError(t, err)
	assert.Equal(t, []string{"down"}, f.calls)
	assert.Contains(t, out, "rolled back")
}

func TestVersion(t *testing.T) {
	out, err := run(t, &fakeMigrator{version: 2}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Current migration version: 2")

	_, err = run(t, &fakeMigrator{version: 1, dirty: true}, "version")
	assert.Error(t, err)
}

func TestForce(t *testing.T) {
	f := &fakeMigrator{}
	out, err := run(t, f, "force", "1")
	require.NoError(t, err)
	assert.Equal(t, 1, f.forced)
	assert.Contains(t, out, "Forced database to version 1")

	f = &fakeMigrator{}
	_, err = run(t, f, "force", "one")
	assert.Error(t, err)
	assert.Empty(t, f.calls)

	_, err = run(t, &fakeMigrator{}, "force")
	assert.Error(t, err)
}

func TestFailurePropagates(t *testing.T) {
	boom := errors.New("boom")
	_, err := run(t, &fakeMigrator{err: boom}, "up")
	assert.ErrorIs(t, err, boom)
}
