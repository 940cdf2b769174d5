package ports

import "github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"

type JournalEntryID uint64

// Journal durably holds records between classification and a successful append.
type Journal interface {
	Append(rec domain.DetectionRecord) (JournalEntryID, error)
	Iterate(from JournalEntryID, fn func(id JournalEntryID, rec domain.DetectionRecord) error) error
	// Commit marks one entry as persisted.
	Commit(id JournalEntryID) error
	TruncateCommitted() error
	Stats() JournalStats
	Close() error
}

type JournalStats struct {
	OldestUncommitted JournalEntryID
	LatestAppended    JournalEntryID
	SizeBytes         int64
}
