package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/callbridge/internal/audio"
	"github.com/ent0n29/callbridge/internal/protocol"
)

type options struct {
	baseURL   string
	streamSID string
	callSID   string
	caller    string
	frames    int
	wavPath   string
	outPath   string
	realtime  float64
	settle    time.Duration
	verbose   bool
}

// frame is the envelope a telephony provider writes to the media stream.
type frame struct {
	Event          protocol.TelephonyEvent `json:"event"`
	SequenceNumber string                  `json:"sequenceNumber,omitempty"`
	StreamSID      string                  `json:"streamSid,omitempty"`
	Protocol       string                  `json:"protocol,omitempty"`
	Version        string                  `json:"version,omitempty"`
	Start          *protocol.StartMetadata `json:"start,omitempty"`
	Media          *protocol.MediaPayload  `json:"media,omitempty"`
	Stop           *protocol.StopMetadata  `json:"stop,omitempty"`
}

type report struct {
	SentFrames     int
	ReceivedFrames int
	ReceivedBytes  int
	FirstAudio     time.Duration
	ServerClosed   bool
	received       []byte
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "callsim: %v\n", err)
		os.Exit(2)
	}
	rep, err := run(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "callsim: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("callsim: stream=%s sent=%d received=%d bytes=%d first_audio=%s server_closed=%t\n",
		cfg.streamSID, rep.SentFrames, rep.ReceivedFrames, rep.ReceivedBytes, rep.FirstAudio.Round(time.Millisecond), rep.ServerClosed)

	if cfg.outPath != "" {
		if err := audio.WriteWAVFile(cfg.outPath, audio.DecodeMulaw(rep.received), audio.NarrowbandRate); err != nil {
			fmt.Fprintf(os.Stderr, "callsim: write %s: %v\n", cfg.outPath, err)
			os.Exit(1)
		}
		fmt.Printf("callsim: wrote assistant audio to %s\n", cfg.outPath)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var settleMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "callbridge base URL")
	flag.StringVar(&cfg.streamSID, "stream-sid", "", "stream id to announce (default: random)")
	flag.StringVar(&cfg.callSID, "call-sid", "", "call id to announce (default: random)")
	flag.StringVar(&cfg.caller, "caller", "+15550000000", "caller number passed as a custom parameter")
	flag.IntVar(&cfg.frames, "frames", 250, "number of 20ms frames of silence to send when -wav is not set")
	flag.StringVar(&cfg.wavPath, "wav", "", "8 kHz PCM16 WAV file to send instead of silence")
	flag.StringVar(&cfg.outPath, "out", "", "write received assistant audio to this WAV file")
	flag.Float64Var(&cfg.realtime, "realtime", 1.0, "frame pacing multiplier (1.0=realtime, 2.0=2x)")
	flag.IntVar(&settleMS, "settle-ms", 3000, "time to keep listening after the last frame before sending stop")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print every received frame")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, fmt.Errorf("base-url is required")
	}
	if cfg.wavPath == "" && cfg.frames <= 0 {
		return options{}, fmt.Errorf("frames must be > 0")
	}
	if cfg.realtime <= 0 {
		return options{}, fmt.Errorf("realtime must be > 0")
	}
	if settleMS < 0 {
		settleMS = 0
	}
	cfg.settle = time.Duration(settleMS) * time.Millisecond
	if cfg.streamSID == "" {
		cfg.streamSID = "MZ" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	if cfg.callSID == "" {
		cfg.callSID = "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return cfg, nil
}

func mediaStreamURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/media-stream"
	return u.String(), nil
}

// loadPayload returns the mu-law bytes to stream.
func loadPayload(cfg options) ([]byte, error) {
	if cfg.wavPath == "" {
		silence := make([]byte, cfg.frames*audio.FrameBytes)
		for i := range silence {
			silence[i] = audio.MulawSilence
		}
		return silence, nil
	}
	data, err := os.ReadFile(cfg.wavPath)
	if err != nil {
		return nil, err
	}
	pcm, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", cfg.wavPath, err)
	}
	if rate != audio.NarrowbandRate {
		return nil, fmt.Errorf("%s is %d Hz, want %d Hz", cfg.wavPath, rate, audio.NarrowbandRate)
	}
	return audio.EncodeMulaw(pcm), nil
}

func run(ctx context.Context, cfg options) (report, error) {
	payload, err := loadPayload(cfg)
	if err != nil {
		return report{}, err
	}
	wsURL, err := mediaStreamURL(cfg.baseURL)
	if err != nil {
		return report{}, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return report{}, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	var (
		mu      sync.Mutex
		rep     report
		started = time.Now()
	)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				mu.Lock()
				rep.ServerClosed = websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
				mu.Unlock()
				return
			}
			var out protocol.OutboundMedia
			if err := json.Unmarshal(data, &out); err != nil || out.Event != protocol.EventMedia {
				continue
			}
			chunk, err := base64.StdEncoding.DecodeString(out.Media.Payload)
			if err != nil {
				continue
			}
			mu.Lock()
			if rep.ReceivedFrames == 0 {
				rep.FirstAudio = time.Since(started)
			}
			rep.ReceivedFrames++
			rep.ReceivedBytes += len(chunk)
			rep.received = append(rep.received, chunk...)
			mu.Unlock()
			if cfg.verbose {
				fmt.Printf("callsim: media bytes=%d\n", len(chunk))
			}
		}
	}()

	seq := 0
	write := func(f frame) error {
		seq++
		f.SequenceNumber = strconv.Itoa(seq)
		return conn.WriteJSON(f)
	}

	if err := write(frame{Event: protocol.EventConnected, Protocol: "Call", Version: "1.0.0"}); err != nil {
		return report{}, err
	}
	if err := write(frame{
		Event:     protocol.EventStart,
		StreamSID: cfg.streamSID,
		Start: &protocol.StartMetadata{
			StreamSID:        cfg.streamSID,
			CallSID:          cfg.callSID,
			Tracks:           []string{"inbound"},
			CustomParameters: map[string]string{"callSid": cfg.callSID, "caller": cfg.caller},
			MediaFormat: protocol.MediaFormat{
				Encoding:   protocol.EncodingMulaw,
				SampleRate: audio.NarrowbandRate,
				Channels:   1,
			},
		},
	}); err != nil {
		return report{}, err
	}

	interval := time.Duration(float64(20*time.Millisecond) / cfg.realtime)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
sendLoop:
	for i, chunk := range audio.Frames(payload) {
		select {
		case <-ctx.Done():
			return report{}, ctx.Err()
		case <-readDone:
			break sendLoop
		case <-ticker.C:
		}
		err := write(frame{
			Event:     protocol.EventMedia,
			StreamSID: cfg.streamSID,
			Media: &protocol.MediaPayload{
				Track:     "inbound",
				Chunk:     strconv.Itoa(i + 1),
				Timestamp: strconv.Itoa(i * 20),
				Payload:   base64.StdEncoding.EncodeToString(chunk),
			},
		})
		if err != nil {
			if errors.Is(err, websocket.ErrCloseSent) {
				break
			}
			return report{}, fmt.Errorf("send media: %w", err)
		}
		sent++
	}

	select {
	case <-readDone:
	case <-time.After(cfg.settle):
		_ = write(frame{
			Event:     protocol.EventStop,
			StreamSID: cfg.streamSID,
			Stop:      &protocol.StopMetadata{CallSID: cfg.callSID},
		})
		select {
		case <-readDone:
		case <-time.After(2 * time.Second):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	rep.SentFrames = sent
	return rep, nil
}
