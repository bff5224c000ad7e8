package audio

import (
	"math"
	"testing"
)

func TestRMSZeroAndAlternating(t *testing.T) {
	if got := RMS(make([]float32, 800)); got != 0 {
		t.Fatalf("rms of silence = %v", got)
	}
	if got := RMS(nil); got != 0 {
		t.Fatalf("rms of empty = %v", got)
	}
	alt := make([]float32, 800)
	for i := range alt {
		alt[i] = 1
		if i%2 == 1 {
			alt[i] = -1
		}
	}
	if got := RMS(alt); math.Abs(float64(got)-1) > 0.001 {
		t.Fatalf("rms of +-1 = %v, want 1", got)
	}
}

func TestDownsampleAlwaysReturnsBins(t *testing.T) {
	for _, n := range []int{0, 1, 10, 47, 48, 49, 800, 2205, 2400} {
		in := make([]float32, n)
		for i := range in {
			in[i] = float32(math.Sin(float64(i))) // mixed signs
		}
		out := Downsample(in, VisualBins)
		if len(out) != VisualBins {
			t.Fatalf("n=%d: got %d bins", n, len(out))
		}
		for i, v := range out {
			if v < 0 {
				t.Fatalf("n=%d: bin %d negative: %v", n, i, v)
			}
		}
	}
}

func TestDownsampleEmptyIsZero(t *testing.T) {
	for i, v := range Downsample(nil, VisualBins) {
		if v != 0 {
			t.Fatalf("bin %d = %v", i, v)
		}
	}
}

func TestDownsampleMeanAbsolute(t *testing.T) {
	in := make([]float32, 96)
	for i := range in {
		in[i] = -0.5
	}
	out := Downsample(in, VisualBins)
	for i, v := range out {
		if v != 0.5 {
			t.Fatalf("bin %d = %v, want 0.5", i, v)
		}
	}
}

func TestWindowerEmitsPerFullWindow(t *testing.T) {
	var frames int
	var lastRMS float32
	w := NewWindower(16000, func(amps []float32, rms float32) {
		if len(amps) != VisualBins {
			t.Fatalf("frame has %d bins", len(amps))
		}
		frames++
		lastRMS = rms
	})
	if w.Size() != 800 {
		t.Fatalf("window size = %d, want 800", w.Size())
	}

	buf := make([]float32, 500)
	for i := range buf {
		buf[i] = 0.25
	}
	w.Push(buf) // 500 buffered
	if frames != 0 {
		t.Fatalf("emitted before a full window")
	}
	w.Push(buf) // 1000 -> one window, 200 left
	if frames != 1 {
		t.Fatalf("frames = %d, want 1", frames)
	}
	if math.Abs(float64(lastRMS)-0.25) > 1e-6 {
		t.Fatalf("rms = %v", lastRMS)
	}

	big := make([]float32, 2400) // 200 + 2400 = 3 windows + 200
	w.Push(big)
	if frames != 4 {
		t.Fatalf("frames = %d, want 4", frames)
	}

	w.Reset()
	w.Push(make([]float32, 700))
	if frames != 4 {
		t.Fatalf("reset should drop buffered tail; frames = %d", frames)
	}
}

func TestWindowerTinyRate(t *testing.T) {
	w := NewWindower(10, nil)
	if w.Size() != 1 {
		t.Fatalf("size = %d", w.Size())
	}
	if !w.Push([]float32{1, 2, 3}) {
		t.Fatalf("uncontended push reported drop")
	}
}
