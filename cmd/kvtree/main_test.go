package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/kvtree/pkg/db/pebble"
	"github.com/eigerco/kvtree/pkg/db/remote"
)

func kvtree(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), append([]string{"-log-level", "error"}, args...), &out)
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := kvtree(t, args...)
	require.NoError(t, err)
	return out
}

func TestCommands(t *testing.T) {
	for _, backend := range []string{"pebble", "leveldb", "badger"} {
		t.Run(backend, func(t *testing.T) {
			base := []string{"-backend", backend, "-path", t.TempDir(), "-sentinel", "."}
			cmd := func(args ...string) []string { return append(append([]string{}, base...), args...) }

			mustRun(t, cmd("put", "e.y", "012")...)
			mustRun(t, cmd("put", "meta.x", "123")...)
			mustRun(t, cmd("put", "meta.z", "x")...)
			mustRun(t, cmd("put", "zzz", "oOo")...)

			assert.Equal(t, "123\n", mustRun(t, cmd("get", "meta.x")...))
			assert.Equal(t, "meta.x\t123\nmeta.z\tx\n", mustRun(t, cmd("ls", "meta.")...))
			assert.Equal(t, "e/\nmeta/\nzzz\toOo\n", mustRun(t, cmd("tree")...))
			assert.Equal(t, "x\t123\nz\tx\n", mustRun(t, cmd("tree", "meta")...))
			assert.Equal(t, "meta\tmeta.x\ne.y\te.y\nzzzz\t<end>\n", mustRun(t, cmd("walk", "meta", "e.y", "zzzz")...))
			assert.Equal(t, "meta.z\tx\n", mustRun(t, cmd("next", "meta.x")...))
			assert.Equal(t, "<none>\n", mustRun(t, cmd("prev", "e.y")...))

			mustRun(t, cmd("delrange", "meta.", "meta.z")...)
			mustRun(t, cmd("del", "zzz")...)
			mustRun(t, cmd("compact")...)
			assert.Equal(t, "e.y\t012\nmeta.z\tx\n", mustRun(t, cmd("ls")...))

			mustRun(t, cmd("delrange", "a")...)
			assert.Empty(t, mustRun(t, cmd("ls")...))
		})
	}
}

func TestBlobDir(t *testing.T) {
	base := []string{"-path", t.TempDir(), "-blob-dir", t.TempDir(), "-blob-threshold", "4"}
	large := strings.Repeat("v", 100)

	mustRun(t, append(base, "put", "k", large)...)
	assert.Equal(t, large+"\n", mustRun(t, append(base, "get", "k")...))
}

func TestRemote(t *testing.T) {
	store, err := pebble.NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	srv, err := remote.NewServer(store, remote.ServerConfig{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	defer srv.Stop() //nolint:errcheck // test cleanup

	base := []string{"-remote", srv.Addr().String(), "-server-key", hex.EncodeToString(srv.PublicKey())}
	mustRun(t, append(base, "put", "a", "1")...)
	assert.Equal(t, "1\n", mustRun(t, append(base, "get", "a")...))

	v, err := store.Get([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	_, err = kvtree(t, append(base, "serve")...)
	assert.ErrorIs(t, err, errUsage)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no_command", args: nil},
		{name: "unknown_command", args: []string{"frobnicate"}},
		{name: "missing_args", args: []string{"put", "k"}},
		{name: "extra_args", args: []string{"get", "a", "b"}},
		{name: "unknown_backend", args: []string{"-backend", "floppy", "ls"}},
		{name: "bad_log_level", args: []string{"-log-level", "loud", "ls"}},
		{name: "bad_flag", args: []string{"-nope", "ls"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := kvtree(t, tc.args...)
			assert.ErrorIs(t, err, errUsage)
		})
	}

	_, err := kvtree(t, "get", "missing")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, errUsage)
}
