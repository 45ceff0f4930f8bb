package audio

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pcmOf(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func samplesOf(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func TestMulawSilence(t *testing.T) {
	assert.Equal(t, []byte{MulawSilence, MulawSilence}, EncodeMulaw(pcmOf(0, 0)))
	assert.Equal(t, []int16{0}, samplesOf(DecodeMulaw([]byte{MulawSilence})))
}

func TestMulawRoundTripWithinQuantization(t *testing.T) {
	in := []int16{1, -1, 100, -100, 1000, -1000, 8000, -8000, 32767, -32768}
	got := samplesOf(DecodeMulaw(EncodeMulaw(pcmOf(in...))))
	require.Len(t, got, len(in))
	for i, want := range in {
		w, g := int(want), int(got[i])
		tolerance := abs(w)/8 + 8
		assert.LessOrEqual(t, abs(g-w), tolerance, "sample %d decoded as %d", w, g)
		if abs(w) >= 100 {
			assert.Equal(t, w < 0, g < 0, "sign of %d", w)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestMulawDecodeEncodeIsStable(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	again := EncodeMulaw(DecodeMulaw(all))
	for i := range all {
		// 0x7F and 0xFF both decode to zero.
		if all[i] == 0x7F {
			continue
		}
		assert.Equal(t, all[i], again[i], "code %#x", all[i])
	}
}

func TestFrames(t *testing.T) {
	frames := Frames(bytes.Repeat([]byte{MulawSilence}, FrameBytes*2+10))
	require.Len(t, frames, 3)
	assert.Len(t, frames[0], FrameBytes)
	assert.Len(t, frames[2], 10)
	assert.Empty(t, Frames(nil))
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := pcmOf(0, 1000, -1000)
	wav, err := EncodeWAV(pcm, NarrowbandRate)
	require.NoError(t, err)
	assert.Len(t, wav, 44+len(pcm))

	got, rate, err := DecodeWAV(wav)
	require.NoError(t, err)
	assert.Equal(t, NarrowbandRate, rate)
	assert.Equal(t, pcm, got)
}

func TestDecodeWAVDownmixesStereo(t *testing.T) {
	stereo := pcmOf(1000, -1000, 3000, 1000)
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(36+len(stereo)))
	b.WriteString("WAVEfmt ")
	for _, v := range []any{uint32(16), uint16(1), uint16(2), uint32(24000), uint32(96000), uint16(4), uint16(16)} {
		_ = binary.Write(&b, binary.LittleEndian, v)
	}
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(stereo)))
	b.Write(stereo)

	got, rate, err := DecodeWAV(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 24000, rate)
	assert.Equal(t, []int16{0, 2000}, samplesOf(got))
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	_, _, err := DecodeWAV([]byte("definitely not audio"))
	assert.Error(t, err)
}
