// Package feedback captures user ratings of agent answers in an
// append-only CSV log.
package feedback

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is one rating of an answer.
type Entry struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Rating    string    `json:"rating"`
	Query     string    `json:"query"`
}

// Valid ratings.
const (
	RatingUp   = "up"
	RatingDown = "down"
)

// ValidRating reports whether the rating is one of the accepted
// values, case-insensitively.
func ValidRating(rating string) bool {
	switch strings.ToLower(strings.TrimSpace(rating)) {
	case RatingUp, RatingDown:
		return true
	}
	return false
}

// Log appends feedback entries to a CSV file. Appends are serialized
// so concurrent requests cannot interleave rows.
type Log struct {
	mu   sync.Mutex
	path string
}

// NewLog creates a feedback log writing to path. The file is created
// on first append.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Append records one rating. The entry's ID and timestamp are
// assigned here.
func (l *Log) Append(rating, query string) (*Entry, error) {
	if !ValidRating(rating) {
		return nil, fmt.Errorf("invalid rating %q", rating)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	entry := &Entry{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Rating:    strings.ToLower(strings.TrimSpace(rating)),
		Query:     query,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := []string{
		entry.ID.String(),
		entry.Timestamp.Format(time.RFC3339),
		entry.Rating,
		entry.Query,
	}
	if err := w.Write(record); err != nil {
		return nil, fmt.Errorf("write entry: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush entry: %w", err)
	}
	return entry, nil
}

// Entries reads back every logged entry, oldest first. A missing file
// is an empty log, not an error.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for i, row := range rows {
		if len(row) != 4 {
			return nil, fmt.Errorf("row %d has %d fields, want 4", i+1, len(row))
		}
		id, err := uuid.Parse(row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad id: %w", i+1, err)
		}
		ts, err := time.Parse(time.RFC3339, row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad timestamp: %w", i+1, err)
		}
		entries = append(entries, Entry{ID: id, Timestamp: ts, Rating: row[2], Query: row[3]})
	}
	return entries, nil
}
