// Package snapshot implements the binary snapshot loader (C3): a lazy,
// non-restartable reader over the on-disk RDB-like file format, feeding
// typed entries to the keyspace engine.
package snapshot

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/emberkv/ember/internal/store"
)

const (
	tagMetadata   = 0xFA
	tagSelectDB   = 0xFE
	tagResizeDB   = 0xFB
	tagEntry      = 0x00
	tagExpiryMs   = 0xFC
	tagExpirySecs = 0xFD
	tagEOF        = 0xFF
)

const header = "REDIS"

// ErrEOF is returned by Next once the terminator tag has been consumed or
// the stream has otherwise been cleanly exhausted.
var ErrEOF = errors.New("snapshot: end of stream")

// Reader streams Entry values out of a snapshot file lazily: each call to
// Next performs exactly the I/O needed to produce (or reject) one record.
// A Reader is not restartable once exhausted or failed.
type Reader struct {
	r    *bufio.Reader
	done bool
}

// Open reads and validates the 9-byte header of path, returning a Reader
// positioned at the first body record. A missing file is reported via the
// returned error with os.IsNotExist(err) true; callers implementing the
// "missing snapshot is a no-op" rule should check for that case themselves
// (see Load).
func Open(path string) (*Reader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	br := bufio.NewReader(f)
	hdr := make([]byte, 9)
	if _, err := io.ReadFull(br, hdr); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("snapshot: reading header: %w", err)
	}
	if string(hdr[:5]) != header {
		f.Close()
		return nil, nil, fmt.Errorf("snapshot: bad magic %q", hdr[:5])
	}
	return &Reader{r: br}, f, nil
}

// Next returns the next Entry in the stream. It returns ErrEOF once the
// 0xFF terminator is reached (or the stream otherwise ends cleanly), and
// any other error on malformed input — the caller is expected to stop
// consuming at that point, per the "truncate on first decode failure"
// loader contract.
func (r *Reader) Next() (store.Entry, error) {
	for {
		if r.done {
			return store.Entry{}, ErrEOF
		}
		tag, err := r.r.ReadByte()
		if err != nil {
			r.done = true
			return store.Entry{}, ErrEOF
		}
		switch tag {
		case tagEOF:
			r.done = true
			// Footer checksum follows; spec says it is ignored, so we do
			// not bother reading it before reporting clean end of stream.
			return store.Entry{}, ErrEOF
		case tagMetadata:
			if _, err := r.readString(); err != nil {
				r.done = true
				return store.Entry{}, err
			}
			if _, err := r.readString(); err != nil {
				r.done = true
				return store.Entry{}, err
			}
			continue
		case tagSelectDB:
			if _, err := r.r.ReadByte(); err != nil {
				r.done = true
				return store.Entry{}, err
			}
			continue
		case tagResizeDB:
			if _, err := r.readSize(); err != nil {
				r.done = true
				return store.Entry{}, err
			}
			if _, err := r.readSize(); err != nil {
				r.done = true
				return store.Entry{}, err
			}
			continue
		case tagEntry:
			return r.readEntry(nil)
		case tagExpiryMs:
			ms, err := r.readUint64LE()
			if err != nil {
				r.done = true
				return store.Entry{}, err
			}
			if _, err := r.r.ReadByte(); err != nil { // value-type encoding byte
				r.done = true
				return store.Entry{}, err
			}
			v := int64(ms)
			return r.readEntry(&v)
		case tagExpirySecs:
			secs, err := r.readUint32LE()
			if err != nil {
				r.done = true
				return store.Entry{}, err
			}
			if _, err := r.r.ReadByte(); err != nil { // value-type encoding byte
				r.done = true
				return store.Entry{}, err
			}
			v := int64(secs) * 1000
			return r.readEntry(&v)
		default:
			// Any other tag terminates parsing cleanly, not as an error.
			r.done = true
			return store.Entry{}, ErrEOF
		}
	}
}

func (r *Reader) readEntry(expiresAtMs *int64) (store.Entry, error) {
	key, err := r.readString()
	if err != nil {
		r.done = true
		return store.Entry{}, err
	}
	val, err := r.readString()
	if err != nil {
		r.done = true
		return store.Entry{}, err
	}
	return store.Entry{Key: key, Value: val, ExpiresAtMs: expiresAtMs}, nil
}

func (r *Reader) readUint32LE() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

func (r *Reader) readUint64LE() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

// sizeResult distinguishes a plain byte count from a special
// integer-encoded string width.
type sizeResult struct {
	n             int
	specialWidth  int // 0 when not a special encoding
	isSpecialMode bool
}

// readSize reads the two-bit-mode length prefix described in the snapshot
// format's size-encoding rules.
func (r *Reader) readSize() (sizeResult, error) {
	first, err := r.r.ReadByte()
	if err != nil {
		return sizeResult{}, err
	}
	mode := first >> 6
	low6 := first & 0x3F
	switch mode {
	case 0b00:
		return sizeResult{n: int(low6)}, nil
	case 0b01:
		next, err := r.r.ReadByte()
		if err != nil {
			return sizeResult{}, err
		}
		return sizeResult{n: int(low6)<<8 | int(next)}, nil
	case 0b10:
		var b [4]byte
		if _, err := io.ReadFull(r.r, b[:]); err != nil {
			return sizeResult{}, err
		}
		n := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
		return sizeResult{n: n}, nil
	default: // 0b11: special integer-encoded string
		var width int
		switch low6 {
		case 0:
			width = 1
		case 1:
			width = 2
		case 2:
			width = 4
		default:
			return sizeResult{}, fmt.Errorf("snapshot: unsupported special-encoding width selector %d", low6)
		}
		return sizeResult{specialWidth: width, isSpecialMode: true}, nil
	}
}

// readString reads one length-prefixed string, rendering special
// integer-encoded strings as their ASCII decimal value.
func (r *Reader) readString() (string, error) {
	size, err := r.readSize()
	if err != nil {
		return "", err
	}
	if size.isSpecialMode {
		buf := make([]byte, size.specialWidth)
		if _, err := io.ReadFull(r.r, buf); err != nil {
			return "", err
		}
		var v int64
		for i := size.specialWidth - 1; i >= 0; i-- {
			v = v<<8 | int64(buf[i])
		}
		return strconv.FormatInt(v, 10), nil
	}
	buf := make([]byte, size.n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Load restores entries from <dir>/<dbfilename> into ks, skipping entries
// that are already expired as of the load time. A missing file is a
// successful no-op; a malformed file truncates loading at the first
// decode failure without returning an error to the caller, so startup
// always proceeds to accept connections.
func Load(ks *store.Keyspace, dir, dbfilename string) error {
	if dir == "" || dbfilename == "" {
		return nil
	}
	path := filepath.Join(dir, dbfilename)
	reader, closer, err := Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// A header that fails to parse is itself a form of corruption;
		// treat it the same as a truncated body: no entries loaded, no
		// error surfaced to the caller.
		return nil
	}
	defer closer.Close()

	now := store.NowMs()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil
		}
		if entry.ExpiresAtMs != nil && *entry.ExpiresAtMs <= now {
			continue
		}
		ks.Put(entry)
	}
}
