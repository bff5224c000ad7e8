package audio_test

import (
	"errors"
	"math"
	"testing"

	"murmur/internal/audio"
	"murmur/internal/audio/audiotest"
	"murmur/internal/logging"
)

func TestDownmixIsArithmeticMean(t *testing.T) {
	for channels := 1; channels <= 6; channels++ {
		frames := 64
		in := make([]float32, frames*channels)
		for i := range in {
			in[i] = float32(math.Sin(float64(i)*0.37)) * 0.9
		}
		out := audio.Downmix(in, channels, make([]float32, frames))
		if len(out) != frames {
			t.Fatalf("ch=%d: got %d frames", channels, len(out))
		}
		for f := 0; f < frames; f++ {
			var sum float32
			for c := 0; c < channels; c++ {
				sum += in[f*channels+c]
			}
			want := sum / float32(channels)
			if math.Abs(float64(out[f]-want)) > 1e-6 {
				t.Fatalf("ch=%d frame %d: got %v want %v", channels, f, out[f], want)
			}
		}
	}
}

func TestCaptureAccumulatesMono(t *testing.T) {
	host := audiotest.New()
	var frames int
	c, err := audio.StartCapture(host, audio.CaptureOptions{
		BufferSeconds: 1,
		OnAmplitude:   func([]float32, float32) { frames++ },
	}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if c.DeviceName() != "Built-in Microphone" || c.SampleRate() != 48000 {
		t.Fatalf("unexpected device %q @ %d", c.DeviceName(), c.SampleRate())
	}

	stream := host.Last()
	stereo := make([]float32, 4800) // 2400 frames = one 50ms window at 48 kHz
	for i := range stereo {
		if i%2 == 0 {
			stereo[i] = 0.5
		} else {
			stereo[i] = -0.1
		}
	}
	if err := stream.Feed(stereo); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if frames != 1 {
		t.Fatalf("amplitude frames = %d, want 1", frames)
	}

	samples, rate := c.Stop()
	if rate != 48000 {
		t.Fatalf("rate = %d", rate)
	}
	if len(samples) != 2400 {
		t.Fatalf("samples = %d, want 2400", len(samples))
	}
	if math.Abs(float64(samples[0])-0.2) > 1e-6 {
		t.Fatalf("sample[0] = %v, want 0.2", samples[0])
	}
	if !stream.Closed() {
		t.Fatalf("stream not released on stop")
	}
	if err := stream.Feed(stereo); err == nil {
		t.Fatalf("feed after stop should fail")
	}
	// Second stop is a no-op.
	if again, _ := c.Stop(); again != nil {
		t.Fatalf("second stop returned %d samples", len(again))
	}
}

func TestCaptureFallsBackToDefault(t *testing.T) {
	host := audiotest.New()
	c, err := audio.StartCapture(host, audio.CaptureOptions{DeviceName: "Nope"}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Discard()
	if c.DeviceName() != "Built-in Microphone" {
		t.Fatalf("fallback picked %q", c.DeviceName())
	}
}

func TestCaptureSelectsNamedDevice(t *testing.T) {
	host := audiotest.New()
	c, err := audio.StartCapture(host, audio.CaptureOptions{DeviceName: "USB Mic"}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Discard()
	if c.SampleRate() != 44100 {
		t.Fatalf("rate = %d", c.SampleRate())
	}
}

func TestCaptureMicrophoneUnavailable(t *testing.T) {
	host := audiotest.New()
	host.Default = ""
	_, err := audio.StartCapture(host, audio.CaptureOptions{}, logging.NewTestLogger())
	if !errors.Is(err, audio.ErrMicrophoneUnavailable) {
		t.Fatalf("want ErrMicrophoneUnavailable, got %v", err)
	}

	host = audiotest.New()
	host.OpenErr = errors.New("busy")
	_, err = audio.StartCapture(host, audio.CaptureOptions{}, logging.NewTestLogger())
	if !errors.Is(err, audio.ErrMicrophoneUnavailable) {
		t.Fatalf("open failure: got %v", err)
	}

	host = audiotest.New()
	host.StartErr = errors.New("denied")
	_, err = audio.StartCapture(host, audio.CaptureOptions{}, logging.NewTestLogger())
	if !errors.Is(err, audio.ErrMicrophoneUnavailable) {
		t.Fatalf("start failure: got %v", err)
	}
	if !host.Last().Closed() {
		t.Fatalf("stream should be closed after failed start")
	}
}

func TestCaptureDiscardDropsSamples(t *testing.T) {
	host := audiotest.New()
	c, err := audio.StartCapture(host, audio.CaptureOptions{}, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = host.Last().Feed(make([]float32, 960))
	host.Last().Fail(errors.New("overflow"))
	c.Discard()
	if !host.Last().Closed() {
		t.Fatalf("discard should release the stream")
	}
	if s, _ := c.Stop(); s != nil {
		t.Fatalf("stop after discard returned samples")
	}
}

func TestListInputDevices(t *testing.T) {
	host := audiotest.New()
	host.Devices = append(host.Devices, audio.Device{Name: "  ", Channels: 1, SampleRate: 16000})
	devs, err := audio.ListInputDevices(host)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(devs) != 2 {
		t.Fatalf("got %d devices, want 2 (blank name skipped)", len(devs))
	}
	if !devs[0].IsDefault || devs[1].IsDefault {
		t.Fatalf("default flags wrong: %+v", devs)
	}

	host.Default = ""
	devs, _ = audio.ListInputDevices(host)
	for _, d := range devs {
		if d.IsDefault {
			t.Fatalf("no device should be default: %+v", devs)
		}
	}

	host.ListErr = errors.New("boom")
	if _, err := audio.ListInputDevices(host); !errors.Is(err, audio.ErrDeviceEnumeration) {
		t.Fatalf("want ErrDeviceEnumeration, got %v", err)
	}
}

func TestEstimateBufferCapacity(t *testing.T) {
	if got := audio.EstimateBufferCapacity(48000, 600); got != 28_800_000 {
		t.Fatalf("got %d", got)
	}
}
