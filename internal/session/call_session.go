package session

import (
	"errors"
	"sync"
	"time"

	"github.com/ent0n29/callbridge/internal/callrecord"
)

var ErrAILegAttached = errors.New("call session already has an AI leg")

// TelephonyLeg is the push-back side of an inbound media stream connection.
type TelephonyLeg interface {
	SendAudio(payload string) error
	Close() error
}

// AILeg is the upstream realtime connection of a call.
type AILeg interface {
	SendAudio(payload string)
	Closing() bool
	Close() error
}

// CallSession binds one telephony connection to one AI connection.
type CallSession struct {
	StreamID  string
	CallID    string
	StartedAt time.Time

	telephony TelephonyLeg

	mu         sync.Mutex
	ai         AILeg
	transcript []callrecord.TranscriptLine
	messages   []callrecord.Message

	closeOnce sync.Once
	closeErr  error
}

func NewCallSession(streamID, callID string, telephony TelephonyLeg) *CallSession {
	return &CallSession{
		StreamID:  streamID,
		CallID:    callID,
		StartedAt: time.Now().UTC(),
		telephony: telephony,
	}
}

// AttachAI binds the AI leg. A session gets exactly one.
func (s *CallSession) AttachAI(ai AILeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ai != nil {
		return ErrAILegAttached
	}
	s.ai = ai
	return nil
}

func (s *CallSession) AI() AILeg {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ai
}

func (s *CallSession) Telephony() TelephonyLeg {
	return s.telephony
}

// Closing reports whether the AI leg is finishing its goodbye turn.
func (s *CallSession) Closing() bool {
	ai := s.AI()
	return ai != nil && ai.Closing()
}

// ForwardAudio hands a caller audio payload to the AI leg, if any.
func (s *CallSession) ForwardAudio(payload string) bool {
	ai := s.AI()
	if ai == nil {
		return false
	}
	ai.SendAudio(payload)
	return true
}

func (s *CallSession) AppendTranscript(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, callrecord.TranscriptLine{Role: role, Text: text, At: time.Now().UTC()})
}

func (s *CallSession) AddMessage(m callrecord.Message) {
	if m.TakenAt.IsZero() {
		m.TakenAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
}

// Record snapshots the session as a finished call record.
func (s *CallSession) Record(reason callrecord.EndReason, endedAt time.Time) callrecord.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return callrecord.Record{
		StreamID:        s.StreamID,
		CallID:          s.CallID,
		StartedAt:       s.StartedAt,
		EndedAt:         endedAt,
		DurationSeconds: endedAt.Sub(s.StartedAt).Seconds(),
		EndReason:       reason,
		Transcript:      append([]callrecord.TranscriptLine(nil), s.transcript...),
		Messages:        append([]callrecord.Message(nil), s.messages...),
	}
}

// Close closes the AI leg, then the telephony leg. Only the first call does
// anything; later calls return the first result.
func (s *CallSession) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if ai := s.AI(); ai != nil {
			if err := ai.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		if s.telephony != nil {
			if err := s.telephony.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Info is the operational view of a live call.
type Info struct {
	StreamID  string    `json:"stream_sid"`
	CallID    string    `json:"call_sid"`
	StartedAt time.Time `json:"started_at"`
	Closing   bool      `json:"closing"`
}

func (s *CallSession) Info() Info {
	return Info{
		StreamID:  s.StreamID,
		CallID:    s.CallID,
		StartedAt: s.StartedAt,
		Closing:   s.Closing(),
	}
}
