// Package command implements the typed command set (C5) and the
// fixed-order dispatcher (C6) that turns a decoded frame into a reply.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/emberkv/ember/internal/config"
	"github.com/emberkv/ember/internal/info"
	"github.com/emberkv/ember/internal/resp"
	"github.com/emberkv/ember/internal/store"
)

// Context is the executor context threaded into every command: the shared
// keyspace and the immutable process config. No hidden global state.
type Context struct {
	Keyspace *store.Keyspace
	Config   config.Config
}

// Command is the closed, tagged-variant shape every command kind
// implements: parsed commands know only how to execute themselves against
// a Context.
type Command interface {
	Execute(ctx Context) resp.Value
}

// parser attempts to recognize a decoded Array frame as one command kind.
// It returns (nil, false, nil) to signal "not my shape", letting the
// dispatcher fall through to the next parser in order.
type parser func(frame resp.Value) (Command, bool, error)

// parsers lists every command's parser in the fixed dispatch order
// required by the wire contract: the first one to recognize the frame
// wins.
var parsers = []parser{
	parsePing,
	parseEcho,
	parseSet,
	parseGet,
	parseKeys,
	parseConfigGet,
	parseInfoReplication,
	parseInfoExtended,
}

// ErrUnrecognized is returned by Dispatch when no parser in the fixed
// order recognizes the frame.
type ErrUnrecognized struct{}

func (ErrUnrecognized) Error() string { return "command: no parser recognized the frame" }

// Dispatch tries each command parser in order, executes the first match,
// and returns its reply frame. A malformed command that matches a
// parser's shape but fails validation (e.g. a non-numeric PX argument)
// surfaces that parser's error; no parser matching at all surfaces
// ErrUnrecognized. Both cases map to "close the connection" at the
// connection-handler layer, per the error-handling design.
func Dispatch(ctx Context, frame resp.Value) (resp.Value, error) {
	for _, p := range parsers {
		cmd, ok, err := p(frame)
		if err != nil {
			return resp.Value{}, err
		}
		if !ok {
			continue
		}
		return cmd.Execute(ctx), nil
	}
	return resp.Value{}, ErrUnrecognized{}
}

// arrayOf extracts the bulk-string items of an Array frame, or reports
// false if frame is not an Array of BulkStrings.
func arrayOf(frame resp.Value) ([]string, bool) {
	if frame.Type != resp.Array {
		return nil, false
	}
	out := make([]string, 0, len(frame.Items))
	for _, item := range frame.Items {
		if item.Type != resp.BulkString || item.IsNull {
			return nil, false
		}
		out = append(out, item.BulkText())
	}
	return out, true
}

// eqFold is ASCII case-insensitive equality, used for every command and
// subcommand name comparison per the wire contract.
func eqFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// --- PING ---------------------------------------------------------------

type Ping struct{}

func parsePing(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) != 1 || !eqFold(parts[0], "PING") {
		return nil, false, nil
	}
	return Ping{}, true, nil
}

func (Ping) Execute(Context) resp.Value {
	return resp.NewSimpleString("PONG")
}

// --- ECHO ---------------------------------------------------------------

type Echo struct {
	Message string
}

func parseEcho(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) != 2 || !eqFold(parts[0], "ECHO") {
		return nil, false, nil
	}
	return Echo{Message: parts[1]}, true, nil
}

func (c Echo) Execute(Context) resp.Value {
	return resp.NewBulkStringFromString(c.Message)
}

// --- SET ------------------------------------------------------------------

type Set struct {
	Key       string
	Value     string
	ttlMillis int64 // relative; resolved to absolute at Execute time
	hasExpiry bool
}

func parseSet(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) < 3 || !eqFold(parts[0], "SET") {
		return nil, false, nil
	}
	cmd := Set{Key: parts[1], Value: parts[2]}
	switch len(parts) {
	case 3:
		return cmd, true, nil
	case 5:
		if !eqFold(parts[3], "PX") {
			return nil, false, nil
		}
		ms, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return nil, true, fmt.Errorf("command: SET PX value %q is not an integer: %w", parts[4], err)
		}
		cmd.hasExpiry = true
		cmd.ttlMillis = ms
		return cmd, true, nil
	default:
		return nil, false, nil
	}
}

func (c Set) Execute(ctx Context) resp.Value {
	entry := store.Entry{Key: c.Key, Value: c.Value}
	if c.hasExpiry {
		expiresAt := store.NowMs() + c.ttlMillis
		entry.ExpiresAtMs = &expiresAt
	}
	ctx.Keyspace.Put(entry)
	return resp.NewSimpleString("OK")
}

// --- GET ------------------------------------------------------------------

type Get struct {
	Key string
}

func parseGet(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) != 2 || !eqFold(parts[0], "GET") {
		return nil, false, nil
	}
	return Get{Key: parts[1]}, true, nil
}

func (c Get) Execute(ctx Context) resp.Value {
	v, ok := ctx.Keyspace.Get(c.Key)
	if !ok {
		return resp.NewNull()
	}
	return resp.NewBulkStringFromString(v)
}

// --- KEYS -------------------------------------------------------------

type Keys struct {
	Pattern string
}

func parseKeys(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) != 2 || !eqFold(parts[0], "KEYS") {
		return nil, false, nil
	}
	pattern := parts[1]
	if len(pattern) >= 2 && strings.HasPrefix(pattern, `"`) && strings.HasSuffix(pattern, `"`) {
		pattern = pattern[1 : len(pattern)-1]
	}
	return Keys{Pattern: pattern}, true, nil
}

func (c Keys) Execute(ctx Context) resp.Value {
	now := store.NowMs()
	var matched []resp.Value
	for _, e := range ctx.Keyspace.Entries() {
		if e.ExpiresAtMs != nil && now > *e.ExpiresAtMs {
			continue
		}
		if matchAsteriskPattern(c.Pattern, e.Key) {
			matched = append(matched, resp.NewBulkStringFromString(e.Key))
		}
	}
	return resp.NewArray(matched)
}

// matchAsteriskPattern supports exactly one wildcard: "*" matches
// everything, "prefix*"/"*suffix"/"prefix*suffix" anchor on one or both
// ends, and a pattern with no "*" is an exact match.
func matchAsteriskPattern(pattern, text string) bool {
	if pattern == "*" {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(text, prefix)
	}
	if suffix, ok := strings.CutPrefix(pattern, "*"); ok {
		return strings.HasSuffix(text, suffix)
	}
	if i := strings.IndexByte(pattern, '*'); i >= 0 {
		prefix, suffix := pattern[:i], pattern[i+1:]
		return strings.HasPrefix(text, prefix) && strings.HasSuffix(text, suffix)
	}
	return pattern == text
}

// --- CONFIG GET -------------------------------------------------------

type ConfigGet struct {
	Name string
}

func parseConfigGet(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) != 3 || !eqFold(parts[0], "CONFIG") || !eqFold(parts[1], "GET") {
		return nil, false, nil
	}
	return ConfigGet{Name: parts[2]}, true, nil
}

func (c ConfigGet) Execute(ctx Context) resp.Value {
	v, ok := ctx.Config.Get(c.Name)
	if !ok {
		return resp.NewNull()
	}
	return resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString(c.Name),
		resp.NewBulkStringFromString(v),
	})
}

// --- INFO replication ---------------------------------------------------

type InfoReplication struct{}

func parseInfoReplication(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) != 2 || !eqFold(parts[0], "INFO") || !eqFold(parts[1], "replication") {
		return nil, false, nil
	}
	return InfoReplication{}, true, nil
}

func (InfoReplication) Execute(ctx Context) resp.Value {
	rep := ctx.Config.Replication
	if rep.Role == config.RoleSlave {
		return resp.NewBulkStringFromString("role:slave")
	}
	body := strings.Join([]string{
		"role:master",
		"master_replid:" + rep.MasterID,
		"master_repl_offset:" + strconv.FormatInt(rep.MasterOffset, 10),
	}, "\r\n")
	return resp.NewBulkStringFromString(body)
}

// --- INFO / INFO all (supplemental sections) ---------------------------

// InfoExtended answers bare "INFO" and "INFO all" with the extended
// server/memory/replication/keyspace sections described in internal/info.
// It never matches "INFO replication", which keeps the exact
// spec-mandated body produced by InfoReplication.
type InfoExtended struct{}

func parseInfoExtended(frame resp.Value) (Command, bool, error) {
	parts, ok := arrayOf(frame)
	if !ok || len(parts) < 1 || !eqFold(parts[0], "INFO") {
		return nil, false, nil
	}
	if len(parts) == 2 && !eqFold(parts[1], "all") {
		return nil, false, nil
	}
	if len(parts) > 2 {
		return nil, false, nil
	}
	return InfoExtended{}, true, nil
}

func (InfoExtended) Execute(ctx Context) resp.Value {
	return resp.NewBulkStringFromString(info.Sections(ctx.Config, ctx.Keyspace))
}
