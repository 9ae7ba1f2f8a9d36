package qa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Document is a PDF previously uploaded to the service.
type Document struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Turn is one question and its answer. Pending turns have no answer yet.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Pending  bool      `json:"pending,omitempty"`
	AskedAt  time.Time `json:"asked_at"`
}

// Wire shapes of the service responses.
type wireDocument struct {
	PdfID      string    `json:"pdf_id"`
	Filename   string    `json:"filename"`
	UploadDate Timestamp `json:"upload_date"`
}

type listDocumentsResponse struct {
	Pdfs *[]wireDocument `json:"pdfs"`
}

type wireTurn struct {
	Question  string    `json:"question"`
	Answer    *string   `json:"answer"`
	Timestamp Timestamp `json:"timestamp"`
}

type conversationResponse struct {
	Conversation []wireTurn `json:"conversation"`
}

type uploadResponse struct {
	Message string `json:"message"`
	PdfID   string `json:"pdf_id"`
}

type askRequest struct {
	Question string `json:"question"`
	PdfID    string `json:"pdf_id"`
}

type askResponse struct {
	Answer *string `json:"answer"`
}

// Timestamp decodes the timestamp forms produced by the service: RFC 3339 and
// the string form of a Python datetime, with either a space or a T separator.
type Timestamp struct{ time.Time }

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02",
}

// UnmarshalJSON accepts null and the empty string as the zero time.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// ParseTimestamp parses a service timestamp string.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp: %q", s)
}

func (d wireDocument) toDocument() Document {
	return Document{ID: d.PdfID, Filename: d.Filename, UploadedAt: d.UploadDate.Time}
}

func (w wireTurn) toTurn() Turn {
	t := Turn{Question: w.Question, AskedAt: w.Timestamp.Time}
	if w.Answer != nil {
		t.Answer = *w.Answer
	}
	return t
}
