package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/callbridge/internal/callrecord"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/policy"
	"github.com/ent0n29/callbridge/internal/protocol"
	"github.com/ent0n29/callbridge/internal/reliability"
)

const (
	providerName = "openai"
	writeTimeout = 10 * time.Second
)

var (
	ErrNotOpen        = errors.New("realtime connection is not open")
	ErrAlreadyStarted = errors.New("realtime connection already started")
)

// Config describes one upstream realtime session.
type Config struct {
	URL         string
	APIKey      string
	DialTimeout time.Duration
	Session     protocol.SessionConfig
	// OpeningTurn is sent as a user message once the session is configured.
	OpeningTurn string
}

// PushFunc delivers an assistant audio payload to the caller.
type PushFunc func(payload string)

// Sink receives what the conversation produces.
type Sink interface {
	AppendTranscript(role, text string)
	AddMessage(m callrecord.Message)
}

type Deps struct {
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Redactor policy.Redactor
	Dialer   *websocket.Dialer
	Push     PushFunc
	Sink     Sink
	// OnClosed fires once when an established connection reaches Closed.
	OnClosed func()
}

// Client owns one outbound realtime connection.
type Client struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	redactor policy.Redactor
	dialer   *websocket.Dialer
	push     PushFunc
	sink     Sink
	onClosed func()
	tools    *Toolbox

	createdAt time.Time

	mu          sync.Mutex
	state       State
	conn        *websocket.Conn
	established bool
	openedAt    time.Time
	heardAudio  bool

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(cfg Config, deps Deps) *Client {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := deps.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.DialTimeout,
		}
	}
	push := deps.Push
	if push == nil {
		push = func(string) {}
	}
	return &Client{
		cfg:       cfg,
		logger:    logger,
		metrics:   deps.Metrics,
		redactor:  deps.Redactor,
		dialer:    dialer,
		push:      push,
		sink:      deps.Sink,
		onClosed:  deps.OnClosed,
		tools:     NewToolbox(),
		createdAt: time.Now(),
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Closing() bool {
	return c.State() == StateClosing
}

// Done is closed once the client reaches Closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Connect dials the provider, sends session.update and starts the read
// loop. A failed dial leaves the client Closed without firing OnClosed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnecting || c.conn != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.mu.Unlock()

	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialStart := time.Now()
	conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
			err = fmt.Errorf("realtime dial failed (%s): %w", resp.Status, err)
		} else {
			err = fmt.Errorf("realtime dial failed: %w", err)
		}
		retryable := reliability.IsRetryableDialError(err, status)
		if c.metrics != nil {
			c.metrics.ProviderError(providerName, "dial", retryable)
		}
		c.logger.Error("realtime connect failed", zap.Error(err), zap.Int("status", status), zap.Bool("retryable", retryable))
		c.markClosed()
		return err
	}

	c.mu.Lock()
	if c.state == StateClosed {
		// Closed while dialing.
		c.mu.Unlock()
		_ = conn.Close()
		return ErrNotOpen
	}
	c.conn = conn
	c.established = true
	c.openedAt = time.Now()
	c.state = StateConfiguring
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveStage(observability.StageAIConnect, time.Since(dialStart))
	}
	c.logger.Info("realtime connected", zap.String("url", c.cfg.URL))

	if err := c.send(protocol.NewSessionUpdate(c.cfg.Session), protocol.TypeSessionUpdate); err != nil {
		_ = c.Close()
		return fmt.Errorf("send session.update: %w", err)
	}

	go c.readLoop(conn)
	return nil
}

// SendAudio appends one caller audio payload. Outside Active and Closing the
// payload is dropped.
func (c *Client) SendAudio(payload string) {
	st := c.State()
	if !st.acceptsAudio() {
		if c.metrics != nil {
			c.metrics.Dropped(observability.LegAI, "state_"+st.String())
		}
		return
	}
	_ = c.send(protocol.NewAudioAppend(payload), protocol.TypeInputAudioBufferAppend)
}

// Close releases the connection. It is idempotent and safe from any
// goroutine, including the read loop and the OnClosed callback.
func (c *Client) Close() error {
	var fire bool
	c.closeOnce.Do(func() {
		c.mu.Lock()
		prev := c.state
		c.state = StateClosed
		conn := c.conn
		fire = c.established
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			_ = conn.Close()
		}
		close(c.done)
		c.logger.Info("realtime closed", zap.String("from_state", prev.String()))
	})
	if fire && c.onClosed != nil {
		c.onClosed()
	}
	return nil
}

// markClosed moves to Closed without a connection to release.
func (c *Client) markClosed() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer func() { _ = c.Close() }()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.State() != StateClosed {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.logger.Info("realtime connection closed by peer", zap.Error(err))
				} else {
					c.logger.Warn("realtime read failed", zap.Error(err))
				}
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	evt, err := protocol.ParseRealtimeEvent(data)
	if err != nil {
		c.logger.Warn("dropping malformed realtime event", zap.Error(err))
		if c.metrics != nil {
			c.metrics.Dropped(observability.LegAI, "malformed")
		}
		return
	}
	if c.metrics != nil {
		label := evt.EventType()
		if _, ok := evt.(protocol.UnrecognizedEvent); ok {
			label = "unrecognized"
		}
		c.metrics.Frame(observability.LegAI, "in", label)
	}

	switch e := evt.(type) {
	case protocol.SessionCreated:
		c.logger.Debug("realtime session created")
	case protocol.SessionUpdated:
		c.onSessionUpdated()
	case protocol.AudioDelta:
		c.onAudioDelta(e)
	case protocol.AssistantTranscriptDone:
		c.onTranscript(callrecord.RoleAssistant, e.Transcript)
	case protocol.InputTranscriptionCompleted:
		c.onTranscript(callrecord.RoleCaller, e.Transcript)
	case protocol.FunctionCallArgumentsDone:
		c.onFunctionCall(e)
	case protocol.ResponseDone:
		c.onResponseDone(e)
	case protocol.ErrorEvent:
		c.onError(e)
	case protocol.IgnoredEvent:
	case protocol.UnrecognizedEvent:
		c.logger.Debug("ignoring unrecognized realtime event", zap.String("type", e.Type))
	}
}

func (c *Client) onSessionUpdated() {
	c.mu.Lock()
	if c.state != StateConfiguring {
		c.mu.Unlock()
		c.logger.Debug("session.updated outside configuring", zap.String("state", c.state.String()))
		return
	}
	c.state = StateActive
	openedAt := c.openedAt
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ObserveStage(observability.StageAIConfigured, time.Since(openedAt))
	}
	c.logger.Info("realtime session configured")

	if err := c.send(protocol.NewUserTextItem(c.cfg.OpeningTurn), protocol.TypeConversationItemCreate); err != nil {
		return
	}
	_ = c.send(protocol.NewResponseCreate(), protocol.TypeResponseCreate)
}

func (c *Client) onAudioDelta(e protocol.AudioDelta) {
	if e.Delta == "" {
		return
	}
	c.mu.Lock()
	first := !c.heardAudio
	c.heardAudio = true
	c.mu.Unlock()
	if first && c.metrics != nil {
		c.metrics.ObserveStage(observability.StageFirstAIAudio, time.Since(c.createdAt))
	}
	c.push(e.Delta)
}

func (c *Client) onTranscript(role, text string) {
	if text == "" {
		return
	}
	c.logger.Info("transcript", zap.String("role", role), zap.String("text", c.redactor.Text(text)))
	if c.sink != nil {
		c.sink.AppendTranscript(role, text)
	}
}

func (c *Client) onFunctionCall(e protocol.FunctionCallArgumentsDone) {
	call := ToolCall{Name: e.Name, CallID: e.CallID, Arguments: ParseToolArguments(e.Arguments)}
	result := c.tools.Execute(call)
	if result.EndCall && !c.beginClosing(result.EndReason) {
		result.EndCall = false
		result.Output = ToolOutput{Status: ToolStatusError, Message: "Call cannot be ended in state " + c.State().String()}
	}

	fields := []zap.Field{
		zap.String("tool", call.Name),
		zap.String("call_id", call.CallID),
		zap.String("status", result.Output.Status),
	}
	if result.Output.Status == ToolStatusError {
		fields = append(fields, zap.String("detail", result.Output.Message))
	}
	c.logger.Info("tool call", fields...)
	if c.metrics != nil {
		c.metrics.ToolCall(call.Name, result.Output.Status)
	}

	if result.Message != nil {
		logged := c.redactor.Message(*result.Message)
		c.logger.Info("message taken",
			zap.String("caller_name", logged.CallerName),
			zap.String("caller_company", logged.CallerCompany),
			zap.String("callback_number", logged.CallbackNumber),
			zap.String("message", logged.Body),
			zap.String("urgency", logged.Urgency),
		)
		if c.sink != nil {
			c.sink.AddMessage(*result.Message)
		}
	}
	if err := c.send(protocol.NewFunctionCallOutput(call.CallID, result.Output.JSON()), protocol.TypeConversationItemCreate); err != nil {
		return
	}
	_ = c.send(protocol.NewResponseCreate(), protocol.TypeResponseCreate)
}

// beginClosing reports whether the call is now finishing its goodbye turn.
func (c *Client) beginClosing(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosing:
		return true
	case StateActive:
	default:
		c.logger.Warn("end of call requested outside active conversation", zap.String("state", c.state.String()))
		return false
	}
	c.state = StateClosing
	c.logger.Info("end of call requested", zap.String("reason", reason))
	if c.metrics != nil {
		c.metrics.CallEvent("end_call")
	}
	return true
}

// onResponseDone hangs up after the goodbye turn. The response that carried
// the end_call function call is not the goodbye turn.
func (c *Client) onResponseDone(e protocol.ResponseDone) {
	if c.State() != StateClosing || e.HasFunctionCall() {
		return
	}
	c.logger.Info("closing after final response")
	_ = c.Close()
}

func (c *Client) onError(e protocol.ErrorEvent) {
	retryable := reliability.IsRetryableRealtimeError(e.Error.Type, e.Error.Code)
	c.logger.Warn("realtime error event",
		zap.String("type", e.Error.Type),
		zap.String("code", e.Error.Code),
		zap.String("message", e.Error.Message),
		zap.Bool("retryable", retryable),
	)
	if c.metrics != nil {
		c.metrics.ProviderError(providerName, reliability.ErrorCode(e.Error.Code), retryable)
	}
}

func (c *Client) send(msg any, typ string) error {
	c.mu.Lock()
	conn, st := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || st == StateClosed {
		c.logger.Debug("dropping realtime send", zap.String("type", typ), zap.String("state", st.String()))
		if c.metrics != nil {
			c.metrics.Dropped(observability.LegAI, "not_open")
		}
		return ErrNotOpen
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	err := conn.WriteJSON(msg)
	_ = conn.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()

	if err != nil {
		if c.State() == StateClosed {
			return ErrNotOpen
		}
		c.logger.Warn("realtime write failed", zap.String("type", typ), zap.Error(err))
		_ = c.Close()
		return fmt.Errorf("write %s: %w", typ, err)
	}
	if c.metrics != nil {
		c.metrics.Frame(observability.LegAI, "out", typ)
	}
	return nil
}
