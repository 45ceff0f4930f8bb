package agent

import "github.com/ent0n29/callbridge/internal/protocol"

const (
	DefaultVoice              = "verse"
	DefaultTranscriptionModel = "whisper-1"
)

// SessionConfig assembles the session.update payload for one call. audioFormat
// is used for both directions so payloads pass through untouched.
func SessionConfig(p Persona, voice, audioFormat string) protocol.SessionConfig {
	if voice == "" {
		voice = DefaultVoice
	}
	if audioFormat == "" {
		audioFormat = protocol.AudioFormatG711ULaw
	}
	return protocol.SessionConfig{
		Instructions: BuildInstructions(p),
		Tools:        Tools(),
		Voice:        voice,
		Modalities:   []string{"text", "audio"},
		TurnDetection: &protocol.TurnDetection{
			Type:              "server_vad",
			Threshold:         0.5,
			PrefixPaddingMS:   300,
			SilenceDurationMS: 500,
		},
		InputAudioTranscription: &protocol.InputAudioTranscription{Model: DefaultTranscriptionModel},
		InputAudioFormat:        audioFormat,
		OutputAudioFormat:       audioFormat,
	}
}
