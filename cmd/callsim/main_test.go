package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/callbridge/internal/audio"
	"github.com/ent0n29/callbridge/internal/protocol"
)

func TestMediaStreamURL(t *testing.T) {
	got, err := mediaStreamURL("http://127.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://127.0.0.1:8080/media-stream", got)

	got, err = mediaStreamURL("https://bridge.example.com/base/")
	require.NoError(t, err)
	assert.Equal(t, "wss://bridge.example.com/base/media-stream", got)

	_, err = mediaStreamURL("ftp://x")
	assert.Error(t, err)
}

func TestLoadPayloadSilence(t *testing.T) {
	payload, err := loadPayload(options{frames: 3})
	require.NoError(t, err)
	assert.Len(t, payload, 3*audio.FrameBytes)
	assert.Equal(t, audio.MulawSilence, payload[0])
}

func TestLoadPayloadRejectsWideband(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.wav")
	require.NoError(t, audio.WriteWAVFile(path, make([]byte, 64), 16000))
	_, err := loadPayload(options{wavPath: path})
	assert.ErrorContains(t, err, "want 8000 Hz")
}

// echoBridge answers every media frame with the same payload and hangs up on stop.
func echoBridge(t *testing.T, starts chan<- protocol.StartFrame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var streamSID string
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			f, err := protocol.ParseTelephonyFrame(data)
			if err != nil {
				continue
			}
			switch f := f.(type) {
			case protocol.StartFrame:
				streamSID = f.StreamID()
				starts <- f
			case protocol.MediaFrame:
				out, _ := json.Marshal(protocol.NewOutboundMedia(streamSID, f.Media.Payload))
				_ = conn.WriteMessage(websocket.TextMessage, out)
			case protocol.StopFrame:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunAgainstEchoBridge(t *testing.T) {
	starts := make(chan protocol.StartFrame, 1)
	srv := echoBridge(t, starts)

	rep, err := run(context.Background(), options{
		baseURL:   srv.URL,
		streamSID: "MZtest",
		callSID:   "CAtest",
		caller:    "+15550000000",
		frames:    5,
		realtime:  10,
		settle:    300 * time.Millisecond,
	})
	require.NoError(t, err)

	start := <-starts
	assert.Equal(t, "MZtest", start.StreamID())
	assert.Equal(t, protocol.EncodingMulaw, start.Start.MediaFormat.Encoding)
	assert.Equal(t, "CAtest", start.Start.CustomParameters["callSid"])

	assert.Equal(t, 5, rep.SentFrames)
	assert.Equal(t, 5, rep.ReceivedFrames)
	assert.Equal(t, 5*audio.FrameBytes, rep.ReceivedBytes)
	assert.True(t, rep.ServerClosed)
}
