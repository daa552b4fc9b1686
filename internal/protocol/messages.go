package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ent0n29/synthdesk/internal/interaction"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeAppOpen           MessageType = "app_open"
	TypeInteraction       MessageType = "interaction"
	TypeClose             MessageType = "close"
	TypeAudioControl      MessageType = "audio_control"
	TypeAudioCaptureFrame MessageType = "audio_capture_frame"

	TypeContentState  MessageType = "content_state"
	TypeAudioPlayback MessageType = "audio_playback"
	TypeAudioState    MessageType = "audio_state"
	TypeSystemEvent   MessageType = "system_event"
	TypeErrorEvent    MessageType = "error_event"
)

const (
	AudioActionStart = "start"
	AudioActionStop  = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type AppOpen struct {
	Type  MessageType `json:"type"`
	AppID string      `json:"app_id"`
}

type Interaction struct {
	Type        MessageType        `json:"type"`
	Interaction interaction.Record `json:"interaction"`
}

type Close struct {
	Type MessageType `json:"type"`
}

type AudioControl struct {
	Type   MessageType `json:"type"`
	Action string      `json:"action"`
}

// AudioCaptureFrame carries raw microphone samples in [-1, 1] at 16 kHz.
type AudioCaptureFrame struct {
	Type    MessageType `json:"type"`
	Samples []float32   `json:"samples"`
}

type ContentState struct {
	Type      MessageType `json:"type"`
	AppID     string      `json:"app_id,omitempty"`
	PathKey   string      `json:"path_key,omitempty"`
	Content   string      `json:"content"`
	IsLoading bool        `json:"is_loading"`
	Error     string      `json:"error,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// AudioPlayback is a scheduled buffer of model audio. StartAtMs is on the
// clock the client started when the audio session opened.
type AudioPlayback struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id,omitempty"`
	StartAtMs   float64     `json:"start_at_ms"`
	SampleRate  int         `json:"sample_rate"`
	Samples     int         `json:"samples"`
	PCM16Base64 string      `json:"pcm16_base64,omitempty"`
	Flush       bool        `json:"flush,omitempty"`
}

type AudioState struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	State     string      `json:"state"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAppOpen:
		var msg AppOpen
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.AppID = strings.TrimSpace(msg.AppID)
		if msg.AppID == "" {
			return nil, errors.New("invalid app_open")
		}
		return msg, nil
	case TypeInteraction:
		var msg Interaction
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		msg.Interaction = msg.Interaction.Normalize()
		if msg.Interaction.ID == "" {
			return nil, errors.New("invalid interaction")
		}
		return msg, nil
	case TypeClose:
		return Close{Type: TypeClose}, nil
	case TypeAudioControl:
		var msg AudioControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Action != AudioActionStart && msg.Action != AudioActionStop {
			return nil, errors.New("invalid audio_control")
		}
		return msg, nil
	case TypeAudioCaptureFrame:
		var msg AudioCaptureFrame
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if len(msg.Samples) == 0 {
			return nil, errors.New("invalid audio_capture_frame")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
