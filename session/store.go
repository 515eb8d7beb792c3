package session

import (
	"context"
	"errors"
	"time"

	"github.com/armatrix/mcp-bridge-go/conversation"
)

// TimestampLayout is the format of Document.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var (
	// ErrNotFound is returned when no document exists under a name.
	ErrNotFound = errors.New("session: document not found")
	// ErrInvalidName is returned for empty names, and for names that would
	// escape a FileStore's directory.
	ErrInvalidName = errors.New("session: invalid document name")
	// ErrMalformed is returned when a stored document cannot be decoded.
	ErrMalformed = errors.New("session: malformed document")
)

// Document is one saved conversation.
type Document struct {
	History   conversation.History `json:"history"`
	Timestamp string               `json:"timestamp"`
}

// NewDocument snapshots h with the current time.
func NewDocument(h conversation.History) Document {
	return NewDocumentAt(h, time.Now())
}

// NewDocumentAt snapshots h with the given time.
func NewDocumentAt(h conversation.History, at time.Time) Document {
	h = h.Clone()
	if h == nil {
		h = conversation.History{}
	}
	return Document{History: h, Timestamp: at.Format(TimestampLayout)}
}

// Time parses Timestamp. Documents written by other tools may carry a
// timestamp without the fractional part; both forms are accepted.
func (d Document) Time() (time.Time, error) {
	if t, err := time.ParseInLocation(TimestampLayout, d.Timestamp, time.Local); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateTime, d.Timestamp, time.Local)
}

// Store saves and loads documents by name.
type Store interface {
	Save(ctx context.Context, name string, doc Document) error
	Load(ctx context.Context, name string) (Document, error)
}

// Lister is a Store that can enumerate its documents.
type Lister interface {
	Store
	List(ctx context.Context) ([]string, error)
}
