package audio

import (
	"encoding/binary"
	"fmt"

	vad "github.com/maxhawkins/go-webrtcvad"
)

const (
	vadFrameMS  = 30
	vadPadFrame = 10 // frames of context kept around detected speech
)

// TrimSilence drops leading and trailing non-speech from 16 kHz mono audio
// using WebRTC VAD at the given aggressiveness (0-3). Audio with no detected
// speech yields an empty slice.
func TrimSilence(samples []float32, aggressiveness int) ([]float32, error) {
	frame := TargetRate * vadFrameMS / 1000
	if len(samples) < frame {
		return samples, nil
	}
	if !(*vad.VAD).ValidRateAndFrameLength(nil, TargetRate, frame) {
		return nil, fmt.Errorf("vad: invalid frame length %d", frame)
	}
	v, err := vad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("vad mode: %w", err)
	}

	pcm := make([]byte, frame*2)
	first, last := -1, -1
	frames := len(samples) / frame
	for i := 0; i < frames; i++ {
		for j, s := range samples[i*frame : (i+1)*frame] {
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			binary.LittleEndian.PutUint16(pcm[j*2:], uint16(int16(s*32767)))
		}
		voiced, err := v.Process(TargetRate, pcm)
		if err != nil {
			return nil, fmt.Errorf("vad process: %w", err)
		}
		if voiced {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return []float32{}, nil
	}
	start := max(0, first-vadPadFrame) * frame
	end := min(len(samples), (last+1+vadPadFrame)*frame)
	if last+1+vadPadFrame >= frames {
		end = len(samples)
	}
	return samples[start:end], nil
}
