package audio

import (
	"math"
	"sync"
)

// VisualBins is the number of magnitude bins per visualization frame.
const VisualBins = 48

// AmplitudeFunc receives one visualization frame per ~50ms of audio.
// It is invoked on the audio thread and must not block.
type AmplitudeFunc func(amplitudes []float32, rms float32)

// Windower groups mono samples into ~50ms windows and emits one
// visualization frame per full window. Push is called by a single producer.
type Windower struct {
	mu     sync.Mutex
	window []float32
	size   int

	drained []float32 // producer-owned scratch, read after mu is released
	emit    AmplitudeFunc
}

// NewWindower sizes the window to sampleRate/20 samples.
func NewWindower(sampleRate int, emit AmplitudeFunc) *Windower {
	size := sampleRate / 20
	if size < 1 {
		size = 1
	}
	return &Windower{
		window:  make([]float32, 0, size*2),
		size:    size,
		drained: make([]float32, 0, size),
		emit:    emit,
	}
}

// Size returns the window length in samples.
func (w *Windower) Size() int { return w.size }

// Push appends samples and drains every full window buffered so far, emitting
// one frame per window. Windows are drained whole; a partial tail waits for
// the next push. It reports false when the window lock was contended and the
// samples were dropped.
func (w *Windower) Push(samples []float32) bool {
	if !w.mu.TryLock() {
		return false
	}
	w.window = append(w.window, samples...)
	n := (len(w.window) / w.size) * w.size
	if n > 0 {
		if cap(w.drained) < n {
			w.drained = make([]float32, n)
		}
		w.drained = w.drained[:n]
		copy(w.drained, w.window[:n])
		rest := copy(w.window, w.window[n:])
		w.window = w.window[:rest]
	}
	w.mu.Unlock()

	if w.emit == nil {
		return true
	}
	for off := 0; off < n; off += w.size {
		win := w.drained[off : off+w.size]
		w.emit(Downsample(win, VisualBins), RMS(win))
	}
	return true
}

// Reset discards buffered samples.
func (w *Windower) Reset() {
	w.mu.Lock()
	w.window = w.window[:0]
	w.mu.Unlock()
}

// RMS returns the root mean square of samples, 0 for an empty slice.
func RMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Downsample reduces samples to exactly bins magnitudes. Each bin is the mean
// absolute value of a contiguous chunk of len(samples)/bins samples; with
// fewer samples than bins each sample fills one bin and the rest are zero.
func Downsample(samples []float32, bins int) []float32 {
	out := make([]float32, bins)
	if len(samples) == 0 || bins == 0 {
		return out
	}
	chunk := len(samples) / bins
	if chunk == 0 {
		for i, s := range samples {
			out[i] = float32(math.Abs(float64(s)))
		}
		return out
	}
	for b := 0; b < bins; b++ {
		var sum float32
		for _, s := range samples[b*chunk : (b+1)*chunk] {
			if s < 0 {
				s = -s
			}
			sum += s
		}
		out[b] = sum / float32(chunk)
	}
	return out
}
