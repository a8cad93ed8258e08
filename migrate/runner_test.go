/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package migrate

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storeerrors "github.com/suparena/identitystore/errors"
)

// memoryTarget is an in-memory ledger.
type memoryTarget struct {
	mu      sync.Mutex
	ledger  []int64
	applied []int64
	fail    map[int64]error
	created int
	onApply func(Migration)
}

func (t *memoryTarget) EnsureLedger(ctx context.Context) error { return nil }

func (t *memoryTarget) Version(ctx context.Context) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var v int64
	for _, l := range t.ledger {
		if l > v {
			v = l
		}
	}
	return v, nil
}

func (t *memoryTarget) Apply(ctx context.Context, m Migration) error {
	if t.onApply != nil {
		t.onApply(m)
	}
	if err := t.fail[m.Version]; err != nil {
		return err
	}
	if m.Func != nil {
		if err := m.Func(ctx); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applied = append(t.applied, m.Version)
	t.ledger = append(t.ledger, m.Version)
	return nil
}

func (t *memoryTarget) EnsureDatabaseExists(ctx context.Context) error {
	t.created++
	return nil
}

func steps(versions ...int64) []Migration {
	out := make([]Migration, len(versions))
	for i, v := range versions {
		out[i] = Migration{Version: v, Name: "step", Script: "SELECT 1"}
	}
	return out
}

func TestMigrateUpFromLedgerVersion(t *testing.T) {
	ctx := context.Background()
	target := &memoryTarget{ledger: []int64{1, 2, 3}}
	r, err := NewRunner(target, steps(5, 1, 4, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(5), r.Latest())

	res, err := r.MigrateUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, target.applied)
	assert.Equal(t, int64(5), res.Version)
	assert.Equal(t, []int64{4, 5}, res.Applied)
	assert.Equal(t, UpToDate, res.State)
	assert.Equal(t, UpToDate, r.State())
}

func TestMigrateUpStopsAtFailingStep(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("syntax error at or near \"TABEL\"")
	target := &memoryTarget{ledger: []int64{1, 2, 3}, fail: map[int64]error{4: boom}}
	r, err := NewRunner(target, steps(1, 2, 3, 4, 5))
	require.NoError(t, err)

	res, err := r.MigrateUp(ctx)
	require.Error(t, err)
	assert.True(t, storeerrors.IsMigrationError(err))
	var merr *storeerrors.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, int64(4), merr.Version)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, target.applied, "step 5 never runs")
	v, _ := target.Version(ctx)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, int64(3), res.Version)
	assert.Equal(t, Failed, r.State())

	// Once fixed, a rerun resumes at step 4.
	delete(target.fail, 4)
	res, err = r.MigrateUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5}, res.Applied)
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	ctx := context.Background()
	target := &memoryTarget{}
	r, err := NewRunner(target, steps(1, 2, 3))
	require.NoError(t, err)

	first, err := r.MigrateUp(ctx)
	require.NoError(t, err)
	second, err := r.MigrateUp(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.Empty(t, second.Applied)
	assert.Equal(t, []int64{1, 2, 3}, target.applied)
}

func TestMigrateUpCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	target := &memoryTarget{}
	target.onApply = func(m Migration) {
		if m.Version == 2 {
			cancel()
		}
	}
	r, err := NewRunner(target, steps(1, 2, 3))
	require.NoError(t, err)

	res, err := r.MigrateUp(ctx)
	assert.True(t, storeerrors.IsCancelled(err))
	assert.False(t, storeerrors.IsMigrationError(err))
	assert.Equal(t, []int64{1, 2}, target.applied)
	assert.Equal(t, int64(2), res.Version)

	_, err = r.MigrateUp(ctx)
	assert.True(t, storeerrors.IsCancelled(err))
}

func TestEnsureDatabaseExists(t *testing.T) {
	ctx := context.Background()
	target := &memoryTarget{ledger: []int64{1}}
	r, err := NewRunner(target, steps(1, 2), WithCreator(target))
	require.NoError(t, err)
	assert.Equal(t, NotChecked, r.State())

	for i := 0; i < 2; i++ {
		res, err := r.EnsureDatabaseExists(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), res.Version)
		assert.Equal(t, DatabaseEnsured, res.State)
	}
	assert.Equal(t, 2, target.created)
	assert.Equal(t, []int64{1}, target.ledger, "existing data untouched")
}

func TestNewRunnerValidation(t *testing.T) {
	target := &memoryTarget{}

	_, err := NewRunner(target, steps(1, 2, 2))
	assert.True(t, storeerrors.IsValidationError(err))

	_, err = NewRunner(target, steps(0))
	assert.True(t, storeerrors.IsValidationError(err))

	_, err = NewRunner(target, []Migration{{Version: 1, Name: "empty"}})
	assert.True(t, storeerrors.IsValidationError(err))

	_, err = NewRunner(nil, steps(1))
	assert.True(t, storeerrors.IsValidationError(err))
}

func TestFuncSteps(t *testing.T) {
	var ran []string
	target := &memoryTarget{}
	r, err := NewRunner(target, []Migration{
		{Version: 1, Name: "seed", Func: func(ctx context.Context) error {
			ran = append(ran, "seed")
			return nil
		}},
	})
	require.NoError(t, err)
	_, err = r.MigrateUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"seed"}, ran)
}

func TestRunnerLogsProgress(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r, err := NewRunner(&memoryTarget{}, steps(1), WithLogger(logger))
	require.NoError(t, err)
	_, err = r.MigrateUp(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "applying migration")
	assert.Contains(t, buf.String(), "version=1")
}

func TestFromFS(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/0002_roles.sql": {Data: []byte("-- +migrate Up\nCREATE TABLE roles (id INT);\n-- +migrate Down\nDROP TABLE roles;\n")},
		"sql/0001_users.sql": {Data: []byte("CREATE TABLE users (id INT);")},
		"sql/README.md":      {Data: []byte("ignored")},
	}
	got, err := FromFS(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Migration{Version: 1, Name: "users", Script: "CREATE TABLE users (id INT);"}, got[0])
	assert.Equal(t, int64(2), got[1].Version)
	assert.Equal(t, "CREATE TABLE roles (id INT);", got[1].Script)
	assert.Equal(t, "0002_roles", got[1].String())

	_, err = FromFS(fstest.MapFS{"bad.sql": {Data: []byte("x")}}, ".")
	assert.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	script := `
-- users
CREATE TABLE a (
  id INT
);
CREATE INDEX ix ON a (id);
INSERT INTO a VALUES (1)`
	assert.Equal(t, []string{
		"CREATE TABLE a (\n  id INT\n);",
		"CREATE INDEX ix ON a (id);",
		"INSERT INTO a VALUES (1)",
	}, SplitStatements(script))
}
