package mediastream

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/callbridge/internal/agent"
	"github.com/ent0n29/callbridge/internal/callrecord"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/policy"
	"github.com/ent0n29/callbridge/internal/protocol"
	"github.com/ent0n29/callbridge/internal/session"
)

const maxFrameBytes = 1 << 20

// Bridge creates and tears down call sessions.
type Bridge interface {
	CreateSession(ctx context.Context, streamID, callID string, persona agent.Persona, leg session.TelephonyLeg) (*session.CallSession, error)
	Teardown(streamID string, reason callrecord.EndReason)
}

type Options struct {
	Persona agent.Persona
	// AudioFormat is the realtime format the AI side is configured with.
	AudioFormat    string
	StrictFormat   bool
	AllowAnyOrigin bool
}

// Server accepts media stream websockets and pushes assistant audio back.
type Server struct {
	bridge   Bridge
	registry *session.Registry
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics
	redactor policy.Redactor
	upgrader websocket.Upgrader
}

func NewServer(bridge Bridge, registry *session.Registry, opts Options, logger *zap.Logger, metrics *observability.Metrics, redactor policy.Redactor) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("callbridge")
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = protocol.AudioFormatG711ULaw
	}
	return &Server{
		bridge:   bridge,
		registry: registry,
		opts:     opts,
		logger:   logger.Named("media-stream"),
		metrics:  metrics,
		redactor: redactor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if opts.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Telephony providers do not send Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// Push delivers an assistant audio payload to the call's telephony leg. A
// missing session or closed connection is logged and otherwise ignored.
func (s *Server) Push(streamID, payload string) {
	cs, err := s.registry.Get(streamID)
	if err != nil {
		s.logger.Debug("push dropped: no session", zap.String("stream_sid", streamID))
		s.metrics.Dropped(observability.LegTelephony, "no_session")
		return
	}
	if err := cs.Telephony().SendAudio(payload); err != nil {
		if errors.Is(err, ErrConnClosed) {
			s.logger.Debug("push dropped: connection closed", zap.String("stream_sid", streamID))
		} else {
			s.logger.Warn("push failed", zap.String("stream_sid", streamID), zap.Error(err))
		}
		s.metrics.Dropped(observability.LegTelephony, "closed")
		return
	}
	s.metrics.Frame(observability.LegTelephony, "out", string(protocol.EventMedia))
}

// callState is owned by one connection's read goroutine.
type callState struct {
	streamID  string
	session   *session.CallSession
	startedAt time.Time
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}
	leg := newConn(ws)
	// gorilla closes the connection on an oversized frame; media frames are
	// a few hundred bytes.
	ws.SetReadLimit(maxFrameBytes)

	logger := s.logger.With(zap.String("remote_addr", r.RemoteAddr))
	logger.Info("media stream connected")
	s.metrics.CallEvent("telephony_connected")

	var st callState
	defer func() {
		_ = leg.Close()
		if st.session != nil {
			s.teardown(&st, callrecord.EndReasonTelephonyClosed)
		}
		logger.Info("media stream disconnected", zap.String("stream_sid", st.streamID))
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if !leg.Closed() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("media stream read failed", zap.Error(err), zap.String("stream_sid", st.streamID))
			}
			return
		}
		if msgType != websocket.TextMessage {
			logger.Debug("dropping non-text frame", zap.Int("message_type", msgType), zap.String("stream_sid", st.streamID))
			s.metrics.Dropped(observability.LegTelephony, "binary")
			continue
		}

		frame, err := protocol.ParseTelephonyFrame(data)
		if err != nil {
			logger.Warn("dropping malformed frame", zap.Error(err))
			s.metrics.Dropped(observability.LegTelephony, "malformed")
			continue
		}

		switch f := frame.(type) {
		case protocol.ConnectedFrame:
			s.metrics.Frame(observability.LegTelephony, "in", string(f.Event()))
			logger.Info("media stream handshake", zap.String("protocol", f.Protocol), zap.String("version", f.Version))
		case protocol.StartFrame:
			s.metrics.Frame(observability.LegTelephony, "in", string(f.Event()))
			s.handleStart(r.Context(), logger, leg, f, &st)
		case protocol.MediaFrame:
			s.metrics.Frame(observability.LegTelephony, "in", string(f.Event()))
			s.handleMedia(logger, f, &st)
		case protocol.StopFrame:
			s.metrics.Frame(observability.LegTelephony, "in", string(f.Event()))
			s.handleStop(logger, f, &st)
		case protocol.MarkFrame:
			s.metrics.Frame(observability.LegTelephony, "in", string(f.Event()))
			logger.Debug("mark", zap.String("name", f.Mark.Name))
		case protocol.DTMFFrame:
			s.metrics.Frame(observability.LegTelephony, "in", string(f.Event()))
			logger.Debug("dtmf", zap.String("digit", f.DTMF.Digit))
		case protocol.UnrecognizedFrame:
			s.metrics.Dropped(observability.LegTelephony, "unrecognized")
			logger.Warn("dropping frame with unknown event", zap.String("event", f.Name))
		}
	}
}

func (s *Server) handleStart(ctx context.Context, logger *zap.Logger, leg *Conn, f protocol.StartFrame, st *callState) {
	if st.session != nil || st.streamID != "" {
		logger.Warn("ignoring second start on connection",
			zap.String("stream_sid", st.streamID),
			zap.String("new_stream_sid", f.StreamID()),
		)
		s.metrics.CallEvent("protocol_violation")
		return
	}
	streamID := f.StreamID()
	if streamID == "" {
		logger.Warn("ignoring start without stream id")
		s.metrics.CallEvent("protocol_violation")
		return
	}
	callID := f.Start.CallSID
	if callID == "" {
		callID = f.Start.CustomParameters["callSid"]
	}
	logger = logger.With(zap.String("stream_sid", streamID), zap.String("call_sid", callID))

	mf := f.Start.MediaFormat
	format, ok := protocol.RealtimeFormatFor(mf)
	if !ok || format != s.opts.AudioFormat {
		fields := []zap.Field{
			zap.String("encoding", mf.Encoding),
			zap.Int("sample_rate", mf.SampleRate),
			zap.Int("channels", mf.Channels),
			zap.String("ai_format", s.opts.AudioFormat),
		}
		if s.opts.StrictFormat {
			logger.Error("refusing stream with mismatched media format", fields...)
			s.metrics.CallEvent("format_rejected")
			st.streamID = streamID
			_ = leg.Close()
			return
		}
		logger.Warn("media format mismatch; relaying bytes verbatim, audio will be unintelligible", fields...)
		s.metrics.CallEvent("format_mismatch")
	}

	leg.setStreamID(streamID)
	cs, err := s.bridge.CreateSession(ctx, streamID, callID, s.opts.Persona, leg)
	if err != nil {
		if errors.Is(err, session.ErrDuplicateStream) {
			logger.Warn("stream already registered by another connection")
			s.metrics.CallEvent("duplicate_stream")
		} else {
			logger.Error("create session failed, closing stream", zap.Error(err))
			s.metrics.CallEvent("create_failed")
			_ = leg.Close()
		}
		st.streamID = streamID
		return
	}

	st.streamID = streamID
	st.session = cs
	st.startedAt = time.Now()
	logger.Info("stream started",
		zap.Strings("tracks", f.Start.Tracks),
		zap.String("caller", s.redactor.Phone(f.Start.CustomParameters["caller"])),
	)
}

func (s *Server) handleMedia(logger *zap.Logger, f protocol.MediaFrame, st *callState) {
	if st.session == nil {
		s.metrics.Dropped(observability.LegTelephony, "no_session")
		logger.Debug("dropping media before start", zap.String("sequence", f.SequenceNumber))
		return
	}
	cs, err := s.registry.Get(st.streamID)
	if err != nil || cs != st.session {
		s.metrics.Dropped(observability.LegTelephony, "no_session")
		logger.Debug("dropping media for torn down session", zap.String("stream_sid", st.streamID))
		return
	}
	if !cs.ForwardAudio(f.Media.Payload) {
		s.metrics.Dropped(observability.LegTelephony, "no_ai_leg")
	}
}

func (s *Server) handleStop(logger *zap.Logger, f protocol.StopFrame, st *callState) {
	if st.session == nil {
		logger.Info("stop without active session", zap.String("stream_sid", f.StreamSID))
		return
	}
	logger.Info("stream stopped",
		zap.String("stream_sid", st.streamID),
		zap.String("call_sid", f.Stop.CallSID),
		zap.Float64("duration_seconds", time.Since(st.startedAt).Seconds()),
	)
	s.teardown(st, callrecord.EndReasonStop)
}

// teardown ends the connection's own session only.
func (s *Server) teardown(st *callState, reason callrecord.EndReason) {
	cs := st.session
	st.session = nil
	if cur, err := s.registry.Get(st.streamID); err != nil || cur != cs {
		return
	}
	s.bridge.Teardown(st.streamID, reason)
}
