package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callbridge/internal/callrecord"
)

type fakeTelephony struct {
	closed atomic.Int32
	mu     sync.Mutex
	sent   []string
}

func (f *fakeTelephony) SendAudio(payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, payload)
	return nil
}

func (f *fakeTelephony) Close() error {
	f.closed.Add(1)
	return nil
}

type fakeAI struct {
	closed  atomic.Int32
	closing atomic.Bool
	mu      sync.Mutex
	audio   []string
}

func (f *fakeAI) SendAudio(payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, payload)
}

func (f *fakeAI) Closing() bool { return f.closing.Load() }

func (f *fakeAI) Close() error {
	f.closed.Add(1)
	return nil
}

func TestRegistryRegisterGetRemove(t *testing.T) {
	r := NewRegistry()
	s := NewCallSession("MZ1", "CA1", &fakeTelephony{})
	require.NoError(t, r.Register(s))

	got, err := r.Get("MZ1")
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, r.Count())

	removed, ok := r.Remove("MZ1")
	require.True(t, ok)
	assert.Same(t, s, removed)

	_, ok = r.Remove("MZ1")
	assert.False(t, ok)

	_, err = r.Get("MZ1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRegistryRejectsDuplicateStream(t *testing.T) {
	r := NewRegistry()
	first := NewCallSession("MZ1", "CA1", &fakeTelephony{})
	require.NoError(t, r.Register(first))

	err := r.Register(NewCallSession("MZ1", "CA2", &fakeTelephony{}))
	require.ErrorIs(t, err, ErrDuplicateStream)

	got, err := r.Get("MZ1")
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryRemoveIfIgnoresReplacedSession(t *testing.T) {
	r := NewRegistry()
	stale := NewCallSession("MZ1", "CA1", &fakeTelephony{})
	require.NoError(t, r.Register(stale))
	_, _ = r.Remove("MZ1")

	fresh := NewCallSession("MZ1", "CA2", &fakeTelephony{})
	require.NoError(t, r.Register(fresh))

	assert.False(t, r.RemoveIf(stale))
	assert.True(t, r.RemoveIf(fresh))
	assert.Zero(t, r.Count())
}

func TestRegistryActiveIsOrderedAndReportsClosing(t *testing.T) {
	r := NewRegistry()
	older := NewCallSession("MZ-old", "CA1", &fakeTelephony{})
	older.StartedAt = time.Now().Add(-time.Minute)
	newer := NewCallSession("MZ-new", "CA2", &fakeTelephony{})
	ai := &fakeAI{}
	ai.closing.Store(true)
	require.NoError(t, newer.AttachAI(ai))

	require.NoError(t, r.Register(newer))
	require.NoError(t, r.Register(older))

	active := r.Active()
	require.Len(t, active, 2)
	assert.Equal(t, "MZ-old", active[0].StreamID)
	assert.False(t, active[0].Closing)
	assert.Equal(t, "MZ-new", active[1].StreamID)
	assert.True(t, active[1].Closing)
}

func TestRegistryChangeHookTracksSize(t *testing.T) {
	r := NewRegistry()
	var sizes []int
	r.SetChangeHook(func(n int) { sizes = append(sizes, n) })

	require.NoError(t, r.Register(NewCallSession("a", "", nil)))
	require.NoError(t, r.Register(NewCallSession("b", "", nil)))
	_, _ = r.Remove("a")
	_, _ = r.Remove("a")
	drained := r.Drain()

	assert.Len(t, drained, 1)
	assert.Equal(t, []int{1, 2, 1, 0}, sizes)
}

func TestRegistryRefusesRegistrationAfterDrain(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCallSession("a", "", nil)))
	require.Len(t, r.Drain(), 1)

	err := r.Register(NewCallSession("b", "", nil))
	require.ErrorIs(t, err, ErrRegistryClosed)
	assert.Zero(t, r.Count())
	assert.Empty(t, r.Drain())
}

func TestRegistryConcurrentCallsKeepAtMostOneEntryPerStream(t *testing.T) {
	r := NewRegistry()
	const streams = 20
	const attempts = 10

	var registered atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < streams; i++ {
		for j := 0; j < attempts; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("MZ%d", i)
				if err := r.Register(NewCallSession(id, "", &fakeTelephony{})); err == nil {
					registered.Add(1)
				}
				_, _ = r.Get(id)
				_ = r.Active()
			}(i)
		}
	}
	wg.Wait()

	assert.Equal(t, int32(streams), registered.Load())
	assert.Equal(t, streams, r.Count())

	var removed atomic.Int32
	for i := 0; i < streams; i++ {
		for j := 0; j < attempts; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, ok := r.Remove(fmt.Sprintf("MZ%d", i)); ok {
					removed.Add(1)
				}
			}(i)
		}
	}
	wg.Wait()
	assert.Equal(t, int32(streams), removed.Load())
	assert.Zero(t, r.Count())
}

func TestCallSessionCloseIsIdempotent(t *testing.T) {
	tel := &fakeTelephony{}
	ai := &fakeAI{}
	s := NewCallSession("MZ1", "CA1", tel)
	require.NoError(t, s.AttachAI(ai))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ai.closed.Load())
	assert.Equal(t, int32(1), tel.closed.Load())
}

func TestCallSessionAcceptsOneAILeg(t *testing.T) {
	s := NewCallSession("MZ1", "CA1", &fakeTelephony{})
	assert.False(t, s.ForwardAudio("AAEC"))

	ai := &fakeAI{}
	require.NoError(t, s.AttachAI(ai))
	require.ErrorIs(t, s.AttachAI(&fakeAI{}), ErrAILegAttached)

	assert.True(t, s.ForwardAudio("AAEC"))
	assert.Equal(t, []string{"AAEC"}, ai.audio)
}

func TestCallSessionRecordSnapshot(t *testing.T) {
	s := NewCallSession("MZ1", "CA1", &fakeTelephony{})
	s.AppendTranscript(callrecord.RoleAssistant, "Hello")
	s.AppendTranscript(callrecord.RoleCaller, "Hi")
	s.AddMessage(callrecord.Message{CallerName: "Jane", Body: "Call me back"})

	ended := s.StartedAt.Add(42 * time.Second)
	rec := s.Record(callrecord.EndReasonStop, ended)

	assert.Equal(t, "MZ1", rec.StreamID)
	assert.Equal(t, "CA1", rec.CallID)
	assert.InDelta(t, 42.0, rec.DurationSeconds, 0.001)
	assert.Equal(t, callrecord.EndReasonStop, rec.EndReason)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, "Hello", rec.Transcript[0].Text)
	require.Len(t, rec.Messages, 1)
	assert.False(t, rec.Messages[0].TakenAt.IsZero())
}
