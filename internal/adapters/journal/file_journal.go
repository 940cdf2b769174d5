// Package journal keeps classified records on disk until the record store has
// accepted them, so a failed or interrupted append survives a restart.
package journal

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

const recordHeaderLen = 12

// entry is the on-disk body of one journal record.
type entry struct {
	Actor  string                `json:"actor"`
	Record domain.RecordDocument `json:"record"`
}

// FileJournal is an append-only log of records with a commit watermark. Entries
// may be committed out of order; the watermark only advances over a contiguous
// run of committed ids.
type FileJournal struct {
	mu        sync.Mutex
	dir       string
	path      string
	metaPath  string
	file      *os.File
	writer    *bufio.Writer
	nextID    ports.JournalEntryID
	committed ports.JournalEntryID
	done      map[ports.JournalEntryID]bool
	sizeBytes int64
	closed    bool
}

func NewFileJournal(dir string) (*FileJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	j := &FileJournal{
		dir:      dir,
		path:     filepath.Join(dir, "journal.log"),
		metaPath: filepath.Join(dir, "journal.meta"),
		done:     make(map[ports.JournalEntryID]bool),
	}
	if err := j.open(); err != nil {
		return nil, err
	}
	if err := j.bootstrap(); err != nil {
		_ = j.file.Close()
		return nil, err
	}
	return j, nil
}

func (j *FileJournal) open() error {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.writer = bufio.NewWriterSize(f, 64<<10)
	return nil
}

func (j *FileJournal) bootstrap() error {
	if err := j.scanExisting(); err != nil {
		return err
	}
	if err := j.loadMeta(); err != nil {
		return err
	}
	if j.nextID < j.committed {
		j.nextID = j.committed
	}
	_, err := j.file.Seek(0, io.SeekEnd)
	return err
}

// scanExisting finds the last complete entry and cuts off a torn tail.
func (j *FileJournal) scanExisting() error {
	stat, err := j.file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return nil
	}

	rf, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer rf.Close()

	reader := bufio.NewReader(rf)
	var (
		offset int64
		lastID ports.JournalEntryID
	)
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(reader, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan header: %w", err)
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		length := binary.BigEndian.Uint32(hdr[8:12])
		if _, err := io.CopyN(io.Discard, reader, int64(length)); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return fmt.Errorf("journal scan body: %w", err)
		}
		offset += recordHeaderLen + int64(length)
		lastID = id
	}

	if err := j.file.Truncate(offset); err != nil {
		return err
	}
	j.sizeBytes = offset
	j.nextID = lastID
	return nil
}

// loadMeta reads the watermark line and the ids committed above it.
func (j *FileJournal) loadMeta() error {
	data, err := os.ReadFile(j.metaPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	lines := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)
	if lines[0] == "" {
		return nil
	}
	u, err := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return fmt.Errorf("journal meta parse: %w", err)
	}
	j.committed = ports.JournalEntryID(u)
	if len(lines) == 2 {
		for _, f := range strings.Fields(lines[1]) {
			id, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return fmt.Errorf("journal meta parse: %w", err)
			}
			if ports.JournalEntryID(id) > j.committed {
				j.done[ports.JournalEntryID(id)] = true
			}
		}
	}
	return nil
}

// Append writes rec and syncs it to disk before returning its id.
func (j *FileJournal) Append(rec domain.DetectionRecord) (ports.JournalEntryID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return 0, os.ErrClosed
	}

	b, err := json.Marshal(entry{Actor: rec.ActorID, Record: rec.Document()})
	if err != nil {
		return 0, err
	}
	id := j.nextID + 1

	// entry format: [8 bytes id][4 bytes len][len bytes json]
	var hdr [recordHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))

	if _, err := j.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := j.writer.Write(b); err != nil {
		return 0, err
	}
	if err := j.writer.Flush(); err != nil {
		return 0, err
	}
	if err := j.file.Sync(); err != nil {
		return 0, err
	}

	j.nextID = id
	j.sizeBytes += int64(len(b) + len(hdr))
	return id, nil
}

// Iterate visits uncommitted entries with id >= from in append order.
func (j *FileJournal) Iterate(from ports.JournalEntryID, fn func(id ports.JournalEntryID, rec domain.DetectionRecord) error) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return os.ErrClosed
	}
	if err := j.writer.Flush(); err != nil {
		j.mu.Unlock()
		return err
	}
	committed := j.committed
	done := make(map[ports.JournalEntryID]bool, len(j.done))
	for id := range j.done {
		done[id] = true
	}
	j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		return err
	}
	defer f.Close()

	return readEntries(bufio.NewReader(f), func(id ports.JournalEntryID, e entry) error {
		if id < from || id <= committed || done[id] {
			return nil
		}
		return fn(id, domain.RecordFromDocument(e.Actor, e.Record))
	})
}

func readEntries(r *bufio.Reader, fn func(id ports.JournalEntryID, e entry) error) error {
	for {
		var hdr [recordHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("journal truncated header: %w", err)
		}
		id := ports.JournalEntryID(binary.BigEndian.Uint64(hdr[0:8]))
		b := make([]byte, binary.BigEndian.Uint32(hdr[8:12]))
		if _, err := io.ReadFull(r, b); err != nil {
			return fmt.Errorf("corrupt journal: %w", err)
		}
		var e entry
		if err := json.Unmarshal(b, &e); err != nil {
			return fmt.Errorf("corrupt journal entry %d: %w", id, err)
		}
		if err := fn(id, e); err != nil {
			return err
		}
	}
}

// Commit marks id as persisted and advances the watermark when possible.
func (j *FileJournal) Commit(id ports.JournalEntryID) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id == 0 || id <= j.committed {
		return nil
	}
	if id > j.nextID {
		return fmt.Errorf("commit %d beyond latest entry %d", id, j.nextID)
	}
	j.done[id] = true
	for j.done[j.committed+1] {
		delete(j.done, j.committed+1)
		j.committed++
	}
	return j.persistMetaLocked()
}

// TruncateCommitted rewrites the log without committed entries.
func (j *FileJournal) TruncateCommitted() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return os.ErrClosed
	}
	if err := j.writer.Flush(); err != nil {
		return err
	}

	tmpPath := j.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	var size int64

	src, err := os.Open(j.path)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	err = readEntries(bufio.NewReader(src), func(id ports.JournalEntryID, e entry) error {
		if id <= j.committed || j.done[id] {
			return nil
		}
		b, err := json.Marshal(e)
		if err != nil {
			return err
		}
		var hdr [recordHeaderLen]byte
		binary.BigEndian.PutUint64(hdr[0:8], uint64(id))
		binary.BigEndian.PutUint32(hdr[8:12], uint32(len(b)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(b); err != nil {
			return err
		}
		size += int64(len(hdr) + len(b))
		return nil
	})
	_ = src.Close()
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("journal truncate: %w", err)
	}

	if err := j.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return err
	}
	if err := j.open(); err != nil {
		return err
	}
	j.sizeBytes = size
	return nil
}

func (j *FileJournal) Stats() ports.JournalStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ports.JournalStats{
		OldestUncommitted: j.committed + 1,
		LatestAppended:    j.nextID,
		SizeBytes:         j.sizeBytes,
	}
}

func (j *FileJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.writer.Flush(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

func (j *FileJournal) persistMetaLocked() error {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", j.committed)
	if len(j.done) > 0 {
		ids := make([]uint64, 0, len(j.done))
		for id := range j.done {
			ids = append(ids, uint64(id))
		}
		sort.Slice(ids, func(a, c int) bool { return ids[a] < ids[c] })
		for i, id := range ids {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strconv.FormatUint(id, 10))
		}
		b.WriteByte('\n')
	}
	tmp := j.metaPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, j.metaPath)
}

var _ ports.Journal = (*FileJournal)(nil)
