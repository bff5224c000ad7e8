package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	soxr "github.com/zaf/resample"
)

// ResampleChunkFrames is the fixed input chunk fed to the resampler.
const ResampleChunkFrames = 1024

// ResampleTo16kHz converts mono samples captured at sourceRate to TargetRate.
//
// Input is streamed through soxr in ResampleChunkFrames chunks. The final
// partial chunk is zero-padded to a full chunk, and only the output owed to
// its real samples, floor(remaining*TargetRate/sourceRate), is kept.
func ResampleTo16kHz(samples []float32, sourceRate int) ([]float32, error) {
	if sourceRate == TargetRate {
		return samples, nil
	}
	if len(samples) == 0 {
		return []float32{}, nil
	}
	if sourceRate <= 0 {
		return nil, fmt.Errorf("%w: invalid source rate %d", ErrResamplingFailed, sourceRate)
	}

	ratio := float64(TargetRate) / float64(sourceRate)
	full := len(samples) / ResampleChunkFrames * ResampleChunkFrames
	rem := len(samples) - full
	want := int(float64(full)*ratio) + int(float64(rem)*ratio)

	var out bytes.Buffer
	out.Grow((want + ResampleChunkFrames) * 4)
	r, err := soxr.New(&out, float64(sourceRate), float64(TargetRate), 1, soxr.F32, soxr.HighQ)
	if err != nil {
		return nil, fmt.Errorf("%w: create resampler: %v", ErrResamplingFailed, err)
	}

	chunk := make([]byte, ResampleChunkFrames*4)
	for off := 0; off < full; off += ResampleChunkFrames {
		putFloats(chunk, samples[off:off+ResampleChunkFrames])
		if _, err := r.Write(chunk); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("%w: %v", ErrResamplingFailed, err)
		}
	}
	if rem > 0 {
		clear(chunk)
		putFloats(chunk, samples[full:])
		if _, err := r.Write(chunk); err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("%w: final chunk: %v", ErrResamplingFailed, err)
		}
	}
	// Close flushes the filter tail into out.
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("%w: flush: %v", ErrResamplingFailed, err)
	}

	got := out.Len() / 4
	if got > want {
		got = want
	}
	res := make([]float32, got)
	raw := out.Bytes()
	for i := range res {
		res[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return res, nil
}

func putFloats(dst []byte, src []float32) {
	for i, s := range src {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(s))
	}
}
