package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"AI_INTERVIEW/go-backend/internal/models"
)

// journalWriteRetries bounds how often a failed append is retried
// before the failure escalates to the session.
const journalWriteRetries = 3

// Journal is the durable, ordered, append-only log of every derived
// signal record, one JSON object per line. Appends from the two
// capture loops are serialized by the write lock; each record hits the
// file before Append returns, so a crash loses at most the in-flight
// record.
type Journal struct {
	path   string
	logger *zap.Logger

	mu        sync.Mutex
	f         *os.File
	count     int64
	closed    bool
	finalized bool
}

func NewJournal(path string, logger *zap.Logger) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open signal journal: %w", err)
	}
	return &Journal{path: path, logger: logger, f: f}, nil
}

// Append writes one record with bounded retries. A persistent failure
// is returned to the caller so the session can escalate.
func (j *Journal) Append(rec models.SignalRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal signal record: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return fmt.Errorf("journal closed")
	}

	var writeErr error
	for attempt := 0; attempt < journalWriteRetries; attempt++ {
		if _, writeErr = j.f.Write(line); writeErr == nil {
			j.count++
			return nil
		}
		j.logger.Warn("journal write failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(writeErr))
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("journal write failed after %d attempts: %w", journalWriteRetries, writeErr)
}

// Count returns how many records have been durably appended.
func (j *Journal) Count() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.count
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.f.Close()
}

// FinalizeSummary writes the terminal summary artifact exactly once,
// after all appends for the session have completed.
func (j *Journal) FinalizeSummary(sum models.SessionSummary, path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finalized {
		return nil
	}

	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session summary: %w", err)
	}
	j.finalized = true
	return nil
}

// Replay streams the journal back in append order, feeding each
// record to observe. Used to rebuild integrity state from the durable
// log.
func Replay(path string, observe func(models.SignalRecord)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open journal for replay: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec models.SignalRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("corrupt journal line: %w", err)
		}
		observe(rec)
	}
	return sc.Err()
}
