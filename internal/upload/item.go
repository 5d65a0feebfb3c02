package upload

import (
	"fmt"
	"time"
)

// Status is an upload item's lifecycle state.
type Status int

// Item states. Transitions: Pending -> Uploading -> Success | Error.
const (
	Pending Status = iota
	Uploading
	Success
	Error
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Uploading:
		return "uploading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name written by MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for _, candidate := range []Status{Pending, Uploading, Success, Error} {
		if candidate.String() == string(b) {
			*s = candidate
			return nil
		}
	}

	return fmt.Errorf("upload: unknown status %q", b)
}

// Item is a point-in-time copy of one queued upload.
type Item struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	TargetPath string    `json:"targetPath"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	Key        string    `json:"key,omitempty"`
	AddedAt    time.Time `json:"addedAt"`
}

// EventKind says what changed about an item.
type EventKind string

// Event kinds.
const (
	EventAdded    EventKind = "added"
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
	EventRemoved  EventKind = "removed"
)

// Event is published on every item change.
type Event struct {
	Kind EventKind
	Item Item
}

// Summary counts the outcomes of one Run.
type Summary struct {
	Succeeded int
	Failed    int
}

// Message renders the summary the way the queue reports a finished batch.
func (s Summary) Message() string {
	switch {
	case s.Succeeded > 0 && s.Failed > 0:
		return fmt.Sprintf("%d file(s) uploaded successfully, %d failed", s.Succeeded, s.Failed)
	case s.Succeeded > 0:
		return fmt.Sprintf("%d file(s) uploaded successfully", s.Succeeded)
	case s.Failed > 0:
		return "All uploads failed"
	default:
		return "Nothing to upload"
	}
}
