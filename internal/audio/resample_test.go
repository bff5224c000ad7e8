package audio

import (
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func sine(rate int, seconds float64, freq float64) []float32 {
	n := int(float64(rate) * seconds)
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestResampleIdentityAt16k(t *testing.T) {
	in := sine(TargetRate, 0.1, 440)
	out, err := ResampleTo16kHz(in, TargetRate)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if len(out) != len(in) || &out[0] != &in[0] {
		t.Fatalf("16 kHz input should be returned unchanged")
	}
}

func TestResampleEmpty(t *testing.T) {
	out, err := ResampleTo16kHz(nil, 48000)
	if err != nil {
		t.Fatalf("resample: %v", err)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", out)
	}
}

func TestResampleOneSecond(t *testing.T) {
	for _, rate := range []int{44100, 48000, 8000} {
		out, err := ResampleTo16kHz(sine(rate, 1, 440), rate)
		if err != nil {
			t.Fatalf("%d: %v", rate, err)
		}
		if math.Abs(float64(len(out)-TargetRate)) > 200 {
			t.Fatalf("%d Hz: got %d samples, want ~16000", rate, len(out))
		}
	}
}

func TestResampleInvalidRate(t *testing.T) {
	if _, err := ResampleTo16kHz([]float32{0.1}, 0); !errors.Is(err, ErrResamplingFailed) {
		t.Fatalf("want ErrResamplingFailed, got %v", err)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clip.wav")
	in := sine(TargetRate, 0.25, 300)
	in[0] = 2 // clamped
	if err := WriteWAVFile(path, in, TargetRate); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, rate, err := ReadWAVFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rate != TargetRate || len(out) != len(in) {
		t.Fatalf("got %d samples @ %d", len(out), rate)
	}
	if math.Abs(float64(out[0])-1) > 0.001 {
		t.Fatalf("clamped sample = %v", out[0])
	}
	for i := 1; i < len(in); i++ {
		if math.Abs(float64(out[i]-in[i])) > 0.001 {
			t.Fatalf("sample %d: %v vs %v", i, out[i], in[i])
		}
	}
}

func TestTrimSilenceOnSilence(t *testing.T) {
	out, err := TrimSilence(make([]float32, TargetRate), 3)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("silence should trim to nothing, kept %d", len(out))
	}
	short := []float32{0.1, 0.2}
	if out, _ := TrimSilence(short, 2); len(out) != 2 {
		t.Fatalf("sub-frame input should pass through")
	}
}
