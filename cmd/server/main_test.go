package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", "", "--log-level", "error"))
	require.NoError(t, root.Execute(), out.String())
	return out.String()
}

func TestCommandsAgainstSQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	t.Setenv("REDIS_ADDR", mr.Addr())
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_DSN", "file:"+filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("EVENTS_ENABLED", "false")
	t.Setenv("BCRYPT_COST", "4")

	run(t, "migrate")
	out := run(t, "useradd", "alice", "--name", "Alice", "--password", "Correct-Horse-42")
	assert.Contains(t, out, "user alice created with id 1")

	out = run(t, "useradd", "bob", "--password", "Another-Pass-77", "--start", "08:00:00", "--end", "16:00:00", "--days", "1111100")
	assert.Contains(t, out, "user bob created with id 2")

	root := newRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"useradd", "carol", "--password", "Another-Pass-77", "--days", "weekdays", "--env-file", ""})
	assert.Error(t, root.Execute())

	out = run(t, "sweep")
	assert.Contains(t, out, "expired tokens: 0, expired passwords: 0, orphan tokens: 0, off-schedule tokens: 0")

	// the token lock went through Redis and was released
	assert.Empty(t, mr.Keys())
}

func TestRootListsCommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "useradd", "consume", "sweep"})
}
