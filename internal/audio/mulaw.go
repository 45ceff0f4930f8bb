// Package audio holds the small amount of G.711 and WAV handling needed to
// synthesize and inspect narrowband call audio.
package audio

import "encoding/binary"

const (
	NarrowbandRate = 8000
	// FrameBytes is 20 ms of 8 kHz mu-law, the telephony frame size.
	FrameBytes = 160

	mulawBias = 0x84
	mulawClip = 32635
)

// MulawSilence is the mu-law encoding of a zero sample.
const MulawSilence byte = 0xFF

// EncodeMulaw converts PCM16LE samples to G.711 mu-law.
func EncodeMulaw(pcm []byte) []byte {
	out := make([]byte, len(pcm)/2)
	for i := range out {
		out[i] = linearToMulaw(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	return out
}

// DecodeMulaw converts G.711 mu-law to PCM16LE samples.
func DecodeMulaw(ulaw []byte) []byte {
	out := make([]byte, len(ulaw)*2)
	for i, b := range ulaw {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(mulawToLinear(b)))
	}
	return out
}

func linearToMulaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > mulawClip {
		s = mulawClip
	}
	s += mulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func mulawToLinear(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	s := ((mantissa << 3) + mulawBias) << exponent
	s -= mulawBias
	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}

// Frames splits payload into FrameBytes-sized chunks; the last one may be short.
func Frames(payload []byte) [][]byte {
	var out [][]byte
	for len(payload) > 0 {
		n := FrameBytes
		if n > len(payload) {
			n = len(payload)
		}
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	return out
}
