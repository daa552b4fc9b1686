package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	CaptureSampleRate   = 16000
	PlaybackSampleRate  = 24000
	CaptureFrameSamples = 4096
	// CaptureMIMEType labels outbound media frames.
	CaptureMIMEType = "audio/pcm;rate=16000"
)

var ErrOddPCMLength = errors.New("pcm16 payload has odd byte length")

// FloatToPCM16 converts samples in [-1, 1] to 16-bit little-endian PCM.
// Out-of-range input is clipped, never wrapped.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		v := math.Round(float64(s) * 32768)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(v)))
	}
	return out
}

// PCM16ToFloat converts 16-bit little-endian PCM to samples in [-1, 1).
func PCM16ToFloat(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrOddPCMLength
	}
	out := make([]float32, len(pcm)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768
	}
	return out, nil
}

// EncodeFrame is the outbound wire form of a capture frame: PCM16 LE, base64.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(FloatToPCM16(samples))
}

// DecodeFrame reverses EncodeFrame for inbound model audio.
func DecodeFrame(data string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode audio frame: %w", err)
	}
	return PCM16ToFloat(raw)
}
