package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/medistore/internal/storage/postgres"
)

type fakeMigrator struct {
	version int64
	applied int
	calls   []string
	err     error
	closed  bool
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.calls = append(f.calls, "up")
	if f.err != nil {
		return f.err
	}
	f.version, f.applied = 3, 3
	return nil
}

func (f *fakeMigrator) MigrateDown(_ context.Context, steps int) error {
	f.calls = append(f.calls, "down")
	f.version -= int64(steps)
	f.applied -= steps
	return f.err
}

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	return f.version, f.applied, nil
}

func (f *fakeMigrator) Migrations(context.Context) ([]postgres.MigrationInfo, error) {
	return []postgres.MigrationInfo{
		{Version: 1, Name: "init", Applied: true},
		{Version: 2, Name: "reviews", Applied: false},
	}, nil
}

func (f *fakeMigrator) Close() error {
	f.closed = true
	return nil
}

func withFake(t *testing.T, fake *fakeMigrator) {
	t.Helper()
	original := openMigrator
	openMigrator = func(context.Context, string) (migrator, error) { return fake, nil }
	t.Cleanup(func() { openMigrator = original })
}

func TestParseOptions(t *testing.T) {
	env := map[string]string{dsnEnv: "postgres://env"}
	getenv := func(key string) string { return env[key] }

	opts, err := parseOptions([]string{"-direction", " DOWN ", "-steps", "2"}, getenv)
	require.NoError(t, err)
	assert.Equal(t, options{direction: "down", steps: 2, dsn: "postgres://env"}, opts)

	opts, err = parseOptions([]string{"-dsn", "postgres://flag"}, getenv)
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag", opts.dsn)
	assert.Equal(t, "up", opts.direction)

	_, err = parseOptions(nil, func(string) string { return "" })
	assert.Error(t, err)
	_, err = parseOptions([]string{"-steps", "-1"}, getenv)
	assert.Error(t, err)
}

func TestRun_Directions(t *testing.T) {
	fake := &fakeMigrator{}
	withFake(t, fake)

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), options{direction: "up", dsn: "x"}, &out))
	assert.Contains(t, out.String(), "migrate up ok: version=3 applied=3")

	out.Reset()
	require.NoError(t, run(context.Background(), options{direction: "down", dsn: "x"}, &out))
	assert.Contains(t, out.String(), "version=2 applied=2", "down defaults to one step")

	out.Reset()
	require.NoError(t, run(context.Background(), options{direction: "list", dsn: "x"}, &out))
	assert.Equal(t, "[x] 0001 init\n[ ] 0002 reviews\n", out.String())

	assert.Equal(t, []string{"up", "down"}, fake.calls)
	assert.True(t, fake.closed)
}

func TestRun_Errors(t *testing.T) {
	withFake(t, &fakeMigrator{err: errors.New("lock timeout")})

	err := run(context.Background(), options{direction: "up", dsn: "x"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")

	err = run(context.Background(), options{direction: "sideways", dsn: "x"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported direction")
}

func TestRun_PostgresStatus(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("MEDISTORE_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("MEDISTORE_POSTGRES_TEST_DSN is not set")
	}

	var out bytes.Buffer
	if err := run(context.Background(), options{direction: "status", dsn: dsn}, &out); err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	assert.Contains(t, out.String(), "migrate status ok")
}
