package command

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkv/ember/internal/config"
	"github.com/emberkv/ember/internal/resp"
	"github.com/emberkv/ember/internal/store"
)

func frameFrom(t *testing.T, wire string) resp.Value {
	t.Helper()
	v, err := resp.Decode(bufio.NewReader(strings.NewReader(wire)))
	require.NoError(t, err)
	return v
}

func newContext() Context {
	return Context{Keyspace: store.New(), Config: config.Default()}
}

func TestDispatchPing(t *testing.T) {
	reply, err := Dispatch(newContext(), frameFrom(t, "*1\r\n$4\r\nPING\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.NewSimpleString("PONG"), reply)
}

func TestDispatchPingCaseInsensitive(t *testing.T) {
	reply, err := Dispatch(newContext(), frameFrom(t, "*1\r\n$4\r\npInG\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.NewSimpleString("PONG"), reply)
}

func TestDispatchEcho(t *testing.T) {
	reply, err := Dispatch(newContext(), frameFrom(t, "*2\r\n$4\r\nECHO\r\n$5\r\nhello\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.NewBulkStringFromString("hello"), reply)
}

func TestDispatchSetGetRoundTrip(t *testing.T) {
	ctx := newContext()

	reply, err := Dispatch(ctx, frameFrom(t, "*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.NewSimpleString("OK"), reply)

	reply, err = Dispatch(ctx, frameFrom(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.NewBulkStringFromString("bar"), reply)
}

func TestDispatchGetMissingKeyIsNull(t *testing.T) {
	reply, err := Dispatch(newContext(), frameFrom(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	assert.True(t, reply.IsNull)
}

func TestDispatchSetPXExpiryElapsed(t *testing.T) {
	orig := store.NowMs
	t.Cleanup(func() { store.NowMs = orig })
	store.NowMs = func() int64 { return 1_000_000 }

	ctx := newContext()
	_, err := Dispatch(ctx, frameFrom(t, "*5\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n$2\r\nPX\r\n$2\r\n50\r\n"))
	require.NoError(t, err)

	store.NowMs = func() int64 { return 1_000_050 }
	reply, err := Dispatch(ctx, frameFrom(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	assert.Equal(t, resp.NewBulkStringFromString("bar"), reply, "equality of now and expiry is not expired")

	store.NowMs = func() int64 { return 1_000_051 }
	reply, err = Dispatch(ctx, frameFrom(t, "*2\r\n$3\r\nGET\r\n$3\r\nfoo\r\n"))
	require.NoError(t, err)
	assert.True(t, reply.IsNull)
}

func TestDispatchSetPXNonIntegerFails(t *testing.T) {
	_, err := Dispatch(newContext(), frameFrom(t, "*5\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n$2\r\nPX\r\n$3\r\nabc\r\n"))
	assert.Error(t, err)
}

func TestMatchAsteriskPattern(t *testing.T) {
	cases := []struct {
		pattern, text string
		want          bool
	}{
		{"*", "anything", true},
		{"h*", "hello", true},
		{"h*", "world", false},
		{"*lo", "hello", true},
		{"*lo", "world", false},
		{"h*lo", "hello", true},
		{"h*lo", "help", false},
		{"hello", "hello", true},
		{"hello", "hellx", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, matchAsteriskPattern(c.pattern, c.text), "%q vs %q", c.pattern, c.text)
	}
}

func TestDispatchKeysPattern(t *testing.T) {
	ctx := newContext()
	for _, k := range []string{"hello", "hi", "hps", "arine", "redis"} {
		ctx.Keyspace.Put(store.Entry{Key: k, Value: "v"})
	}
	reply, err := Dispatch(ctx, frameFrom(t, "*2\r\n$4\r\nKEYS\r\n$2\r\nh*\r\n"))
	require.NoError(t, err)
	require.Equal(t, resp.Array, reply.Type)
	got := make(map[string]bool)
	for _, item := range reply.Items {
		got[item.BulkText()] = true
	}
	assert.Equal(t, map[string]bool{"hello": true, "hi": true, "hps": true}, got)
}

func TestDispatchKeysTrimsSurroundingQuotes(t *testing.T) {
	ctx := newContext()
	ctx.Keyspace.Put(store.Entry{Key: "foo", Value: "v"})
	reply, err := Dispatch(ctx, frameFrom(t, "*2\r\n$4\r\nKEYS\r\n$5\r\n\"foo\"\r\n"))
	require.NoError(t, err)
	require.Len(t, reply.Items, 1)
	assert.Equal(t, "foo", reply.Items[0].BulkText())
}

func TestDispatchKeysExcludesExpired(t *testing.T) {
	orig := store.NowMs
	t.Cleanup(func() { store.NowMs = orig })
	store.NowMs = func() int64 { return 100 }

	ctx := newContext()
	past := int64(50)
	ctx.Keyspace.Put(store.Entry{Key: "foo", Value: "v", ExpiresAtMs: &past})

	reply, err := Dispatch(ctx, frameFrom(t, "*2\r\n$4\r\nKEYS\r\n$1\r\n*\r\n"))
	require.NoError(t, err)
	assert.Empty(t, reply.Items)
}

func TestDispatchConfigGetDir(t *testing.T) {
	ctx := newContext()
	ctx.Config.SnapshotDir = "/tmp"
	reply, err := Dispatch(ctx, frameFrom(t, "*3\r\n$6\r\nCONFIG\r\n$3\r\nGET\r\n$3\r\ndir\r\n"))
	require.NoError(t, err)
	require.Equal(t, resp.Array, reply.Type)
	require.Len(t, reply.Items, 2)
	assert.Equal(t, "dir", reply.Items[0].BulkText())
	assert.Equal(t, "/tmp", reply.Items[1].BulkText())
}

func TestDispatchConfigGetUnknownNameIsNull(t *testing.T) {
	reply, err := Dispatch(newContext(), frameFrom(t, "*3\r\n$6\r\nCONFIG\r\n$3\r\nGET\r\n$10\r\nmaxmemory!\r\n"))
	require.NoError(t, err)
	assert.True(t, reply.IsNull)
}

func TestDispatchInfoReplicationMaster(t *testing.T) {
	ctx := newContext()
	reply, err := Dispatch(ctx, frameFrom(t, "*2\r\n$4\r\nINFO\r\n$11\r\nreplication\r\n"))
	require.NoError(t, err)
	body := reply.BulkText()
	assert.Contains(t, body, "role:master")
	assert.Contains(t, body, "master_repl_offset:0")
	assert.Contains(t, body, "master_replid:")
}

func TestDispatchInfoReplicationSlave(t *testing.T) {
	ctx := newContext()
	ctx.Config.Replication.Role = config.RoleSlave
	reply, err := Dispatch(ctx, frameFrom(t, "*2\r\n$4\r\nINFO\r\n$11\r\nreplication\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "role:slave", reply.BulkText())
}

func TestDispatchBareInfoReturnsExtendedSections(t *testing.T) {
	ctx := newContext()
	reply, err := Dispatch(ctx, frameFrom(t, "*1\r\n$4\r\nINFO\r\n"))
	require.NoError(t, err)
	body := reply.BulkText()
	assert.Contains(t, body, "# Server")
	assert.Contains(t, body, "# Memory")
	assert.Contains(t, body, "# Keyspace")
}

func TestDispatchUnrecognizedFrame(t *testing.T) {
	_, err := Dispatch(newContext(), frameFrom(t, "*1\r\n$7\r\nUNKNOWN\r\n"))
	assert.ErrorIs(t, err, ErrUnrecognized{})
}
