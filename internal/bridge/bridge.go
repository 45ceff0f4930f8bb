package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ent0n29/callbridge/internal/agent"
	"github.com/ent0n29/callbridge/internal/callrecord"
	"github.com/ent0n29/callbridge/internal/observability"
	"github.com/ent0n29/callbridge/internal/policy"
	"github.com/ent0n29/callbridge/internal/realtime"
	"github.com/ent0n29/callbridge/internal/session"
)

var ErrShuttingDown = errors.New("bridge is shutting down")

// Pusher delivers assistant audio to a call's telephony leg.
type Pusher interface {
	Push(streamID, payload string)
}

type Options struct {
	RealtimeURL       string
	APIKey            string
	DialTimeout       time.Duration
	Voice             string
	AudioFormat       string
	RecordSaveTimeout time.Duration
}

// Bridge pairs telephony legs with realtime AI legs and owns their teardown.
type Bridge struct {
	opts     Options
	registry *session.Registry
	store    callrecord.Store
	metrics  *observability.Metrics
	logger   *zap.Logger
	redactor policy.Redactor

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	pusher   Pusher
	shutdown bool

	saves sync.WaitGroup
}

func New(opts Options, registry *session.Registry, store callrecord.Store, metrics *observability.Metrics, logger *zap.Logger, redactor policy.Redactor) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewMetrics("callbridge")
	}
	if opts.RecordSaveTimeout <= 0 {
		opts.RecordSaveTimeout = 10 * time.Second
	}
	registry.SetChangeHook(metrics.SetActiveCalls)
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		opts:     opts,
		registry: registry,
		store:    store,
		metrics:  metrics,
		logger:   logger.Named("bridge"),
		redactor: redactor,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// SetPusher wires the telephony side. It must be called before serving.
func (b *Bridge) SetPusher(p Pusher) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pusher = p
}

func (b *Bridge) push(streamID, payload string) {
	b.mu.RLock()
	p := b.pusher
	b.mu.RUnlock()
	if p == nil {
		b.metrics.Dropped(observability.LegTelephony, "no_pusher")
		return
	}
	p.Push(streamID, payload)
}

// CreateSession registers a call for streamID and starts dialing the AI leg
// in the background. A failed dial leaves the call up without an AI leg.
func (b *Bridge) CreateSession(ctx context.Context, streamID, callID string, persona agent.Persona, leg session.TelephonyLeg) (*session.CallSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := persona.Validate(); err != nil {
		return nil, fmt.Errorf("persona: %w", err)
	}
	persona = persona.Normalized()

	cs := session.NewCallSession(streamID, callID, leg)
	logger := b.logger.With(zap.String("stream_sid", streamID), zap.String("call_sid", callID))

	client := realtime.NewClient(realtime.Config{
		URL:         b.opts.RealtimeURL,
		APIKey:      b.opts.APIKey,
		DialTimeout: b.opts.DialTimeout,
		Session:     agent.SessionConfig(persona, b.opts.Voice, b.opts.AudioFormat),
		OpeningTurn: agent.OpeningTurn(persona),
	}, realtime.Deps{
		Logger:   logger.Named("realtime"),
		Metrics:  b.metrics,
		Redactor: b.redactor,
		Push:     func(payload string) { b.push(streamID, payload) },
		Sink:     cs,
		OnClosed: func() { b.teardownSession(cs, callrecord.EndReasonAIClosed) },
	})
	if err := cs.AttachAI(client); err != nil {
		return nil, err
	}
	if err := b.register(cs); err != nil {
		return nil, err
	}
	b.metrics.CallEvent("session_created")
	logger.Info("call session created")

	go func() {
		if err := client.Connect(b.baseCtx); err != nil {
			logger.Error("AI leg unavailable, call continues without assistant", zap.Error(err))
			b.metrics.CallEvent("ai_connect_failed")
		}
	}()
	return cs, nil
}

// register holds the shutdown lock so a concurrent Shutdown either sees the
// session in its drain or refuses it.
func (b *Bridge) register(cs *session.CallSession) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.shutdown {
		return ErrShuttingDown
	}
	if err := b.registry.Register(cs); err != nil {
		if errors.Is(err, session.ErrRegistryClosed) {
			return ErrShuttingDown
		}
		return err
	}
	return nil
}

// Teardown ends the call registered under streamID. Only the first caller
// for a registration does any work.
func (b *Bridge) Teardown(streamID string, reason callrecord.EndReason) {
	cs, err := b.registry.Get(streamID)
	if err != nil {
		return
	}
	b.teardownSession(cs, reason)
}

func (b *Bridge) teardownSession(cs *session.CallSession, reason callrecord.EndReason) {
	if !b.registry.RemoveIf(cs) {
		return
	}
	b.finish(cs, reason)
}

// finish runs once per removed session.
func (b *Bridge) finish(cs *session.CallSession, reason callrecord.EndReason) {
	endedAt := time.Now().UTC()
	_ = cs.Close()

	rec := cs.Record(reason, endedAt)
	b.metrics.CallEvent("teardown_" + string(reason))
	b.metrics.ObserveCallDuration(endedAt.Sub(cs.StartedAt))
	b.logger.Info("call ended",
		zap.String("stream_sid", cs.StreamID),
		zap.String("call_sid", cs.CallID),
		zap.String("reason", string(reason)),
		zap.Float64("duration_seconds", rec.DurationSeconds),
		zap.Int("transcript_lines", len(rec.Transcript)),
		zap.Int("messages", len(rec.Messages)),
	)

	if b.store == nil {
		return
	}
	b.saves.Add(1)
	go func() {
		defer b.saves.Done()
		b.save(rec)
	}()
}

func (b *Bridge) save(rec callrecord.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.RecordSaveTimeout)
	defer cancel()

	start := time.Now()
	key, err := b.store.Save(ctx, rec)
	b.metrics.ObserveStage(observability.StageRecordSave, time.Since(start))
	if err != nil {
		b.logger.Error("call record save failed", zap.String("stream_sid", rec.StreamID), zap.Error(err))
		return
	}
	b.logger.Info("call record saved", zap.String("stream_sid", rec.StreamID), zap.String("key", key))
}

func (b *Bridge) ActiveSessions() []session.Info {
	return b.registry.Active()
}

// Shutdown refuses new calls, tears down the live ones and waits for pending
// record saves until ctx expires.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.shutdown = true
	b.mu.Unlock()
	b.cancel()

	sessions := b.registry.Drain()
	if len(sessions) > 0 {
		b.logger.Info("tearing down live calls", zap.Int("count", len(sessions)))
	}

	var g errgroup.Group
	for _, cs := range sessions {
		cs := cs
		g.Go(func() error {
			b.finish(cs, callrecord.EndReasonShutdown)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		b.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for record saves: %w", ctx.Err())
	}
}
