// Package info builds the extended INFO sections: supplemental server,
// memory, and keyspace statistics returned by "INFO" and "INFO all",
// beyond the spec-mandated "INFO replication" body.
package info

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/emberkv/ember/internal/config"
	"github.com/emberkv/ember/internal/store"
)

// StartTime is recorded once at process startup and used to compute
// uptime_in_seconds.
var StartTime = time.Now()

// Sections gathers every extended INFO category for the current process
// state and renders them the way "INFO" (no argument, or "all") does:
// one "# Header" line per category followed by its "key:value" lines,
// each pair separated by CRLF as with every other bulk string body on
// the wire.
func Sections(cfg config.Config, ks *store.Keyspace) string {
	var b strings.Builder

	writeSection(&b, "Server", serverSection(cfg))
	writeSection(&b, "Memory", memorySection())
	writeSection(&b, "Replication", replicationSection(cfg))
	writeSection(&b, "Keyspace", keyspaceSection(ks))

	return strings.TrimSuffix(b.String(), "\r\n")
}

func writeSection(b *strings.Builder, header string, kv [][2]string) {
	b.WriteString("# ")
	b.WriteString(header)
	b.WriteString("\r\n")
	for _, pair := range kv {
		b.WriteString(pair[0])
		b.WriteByte(':')
		b.WriteString(pair[1])
		b.WriteString("\r\n")
	}
}

func serverSection(cfg config.Config) [][2]string {
	pid := os.Getpid()
	uptime := int64(time.Since(StartTime).Seconds())
	return [][2]string{
		{"process_id", strconv.Itoa(pid)},
		{"tcp_port", strconv.Itoa(cfg.Port)},
		{"uptime_in_seconds", strconv.FormatInt(uptime, 10)},
		{"run_id", cfg.Replication.MasterID},
	}
}

func memorySection() [][2]string {
	var total uint64
	if vm, err := mem.VirtualMemory(); err == nil {
		total = vm.Total
	}
	return [][2]string{
		{"total_system_memory", fmt.Sprintf("%d", total)},
	}
}

func replicationSection(cfg config.Config) [][2]string {
	return [][2]string{
		{"role", string(cfg.Replication.Role)},
		{"master_replid", cfg.Replication.MasterID},
		{"master_repl_offset", strconv.FormatInt(cfg.Replication.MasterOffset, 10)},
	}
}

func keyspaceSection(ks *store.Keyspace) [][2]string {
	now := store.NowMs()
	var live int
	for _, e := range ks.Entries() {
		if e.ExpiresAtMs == nil || now <= *e.ExpiresAtMs {
			live++
		}
	}
	return [][2]string{
		{"db0", fmt.Sprintf("keys=%d", live)},
	}
}
