package callrecord

import (
	"context"
	"time"
)

// EndReason names the terminal path that finished a call.
type EndReason string

const (
	EndReasonStop            EndReason = "stop"
	EndReasonTelephonyClosed EndReason = "telephony_closed"
	EndReasonAIClosed        EndReason = "ai_closed"
	EndReasonShutdown        EndReason = "shutdown"
)

const (
	RoleCaller    = "caller"
	RoleAssistant = "assistant"
)

// TranscriptLine is one finished utterance on either side of the call.
type TranscriptLine struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Message is a message taken on behalf of the owner.
type Message struct {
	CallerName     string    `json:"caller_name"`
	CallerCompany  string    `json:"caller_company,omitempty"`
	CallbackNumber string    `json:"callback_number,omitempty"`
	Body           string    `json:"message"`
	Urgency        string    `json:"urgency,omitempty"`
	TakenAt        time.Time `json:"taken_at"`
}

// Record is the finished-call summary handed to a Store at teardown.
type Record struct {
	ID              string           `json:"id"`
	StreamID        string           `json:"stream_sid"`
	CallID          string           `json:"call_sid"`
	StartedAt       time.Time        `json:"started_at"`
	EndedAt         time.Time        `json:"ended_at"`
	DurationSeconds float64          `json:"duration_seconds"`
	EndReason       EndReason        `json:"end_reason"`
	Transcript      []TranscriptLine `json:"transcript"`
	Messages        []Message        `json:"messages"`
}

// Store persists finished call records. Save returns the key the record was
// stored under.
type Store interface {
	Save(ctx context.Context, record Record) (string, error)
	Close() error
}

// RecentReader is implemented by stores that can list what they saved.
// Records come back oldest first.
type RecentReader interface {
	Recent(ctx context.Context, limit int) ([]Record, error)
}
