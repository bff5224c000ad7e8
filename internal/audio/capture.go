package audio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultBufferSeconds pre-sizes the accumulation buffer for ten minutes.
const DefaultBufferSeconds = 600

// CaptureOptions configures StartCapture.
type CaptureOptions struct {
	DeviceName    string // exact device name; empty selects the host default
	BufferSeconds int    // accumulation buffer pre-size; 0 uses DefaultBufferSeconds
	OnAmplitude   AmplitudeFunc
}

// Capture owns one live input stream and the mono samples it has produced.
type Capture struct {
	stream     Stream
	sampleRate int
	channels   int
	device     string
	logger     *logrus.Logger

	mu      sync.Mutex
	samples []float32

	mono     []float32 // audio-thread scratch for downmixing
	windower *Windower

	dropped    atomic.Int64
	hwErrors   atomic.Int64
	firstErr   atomic.Pointer[error]
	finishOnce sync.Once
}

// StartCapture resolves the input device, opens a stream at the device's
// native rate and starts accumulating mono samples.
func StartCapture(h Host, opts CaptureOptions, logger *logrus.Logger) (*Capture, error) {
	dev, fellBack, err := resolveDevice(h, opts.DeviceName)
	if fellBack {
		logger.Warnf("audio device %q not found, falling back to default", opts.DeviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	if dev.SampleRate <= 0 || dev.Channels <= 0 {
		return nil, fmt.Errorf("%w: device %q reports %d Hz / %d channels", ErrMicrophoneUnavailable, dev.Name, dev.SampleRate, dev.Channels)
	}

	secs := opts.BufferSeconds
	if secs <= 0 {
		secs = DefaultBufferSeconds
	}
	c := &Capture{
		sampleRate: dev.SampleRate,
		channels:   dev.Channels,
		device:     dev.Name,
		logger:     logger,
		samples:    make([]float32, 0, EstimateBufferCapacity(dev.SampleRate, secs)),
		windower:   NewWindower(dev.SampleRate, opts.OnAmplitude),
	}

	stream, err := h.OpenInput(dev, c.onInput, c.onError)
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %v", ErrMicrophoneUnavailable, dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: start %q: %v", ErrMicrophoneUnavailable, dev.Name, err)
	}
	c.stream = stream
	logger.Infof("capturing from %q @ %d Hz, %d ch", dev.Name, dev.SampleRate, dev.Channels)
	return c, nil
}

// onInput runs on the audio thread for every hardware buffer.
func (c *Capture) onInput(in []float32) {
	frames := len(in) / c.channels
	if cap(c.mono) < frames {
		c.mono = make([]float32, frames)
	}
	mono := Downmix(in, c.channels, c.mono[:frames])

	if c.mu.TryLock() {
		c.samples = append(c.samples, mono...)
		c.mu.Unlock()
	} else {
		c.dropped.Add(int64(len(mono)))
	}
	if !c.windower.Push(mono) {
		c.dropped.Add(int64(len(mono)))
	}
}

// onError runs on the audio thread too, so it only counts. release logs.
func (c *Capture) onError(err error) {
	c.hwErrors.Add(1)
	c.firstErr.CompareAndSwap(nil, &err)
}

// SampleRate is the native rate the device was opened at.
func (c *Capture) SampleRate() int { return c.sampleRate }

// DeviceName is the name of the device actually opened.
func (c *Capture) DeviceName() string { return c.device }

// Stop releases the stream and hands back everything captured. The buffer
// is taken only after the stream is closed, so no writer remains.
func (c *Capture) Stop() ([]float32, int) {
	var out []float32
	c.finishOnce.Do(func() {
		c.release()
		c.mu.Lock()
		out = c.samples
		c.samples = nil
		c.mu.Unlock()
		c.windower.Reset()
	})
	return out, c.sampleRate
}

// Discard releases the stream and drops the captured samples.
func (c *Capture) Discard() {
	c.finishOnce.Do(func() {
		c.release()
		c.mu.Lock()
		c.samples = nil
		c.mu.Unlock()
		c.windower.Reset()
	})
}

func (c *Capture) release() {
	if err := c.stream.Close(); err != nil {
		c.logger.Warnf("close input stream: %v", err)
	}
	if n := c.dropped.Load(); n > 0 {
		c.logger.Warnf("dropped %d samples under buffer contention", n)
	}
	if n := c.hwErrors.Load(); n > 0 {
		c.logger.Errorf("%d audio capture errors during session, first: %v", n, *c.firstErr.Load())
	}
}

// Downmix averages interleaved frames into mono, writing into dst.
// With one channel the input is copied as-is.
func Downmix(in []float32, channels int, dst []float32) []float32 {
	if channels <= 1 {
		n := copy(dst, in)
		return dst[:n]
	}
	frames := len(in) / channels
	if len(dst) < frames {
		frames = len(dst)
	}
	n := float32(channels)
	for f := 0; f < frames; f++ {
		var sum float32
		for _, s := range in[f*channels : (f+1)*channels] {
			sum += s
		}
		dst[f] = sum / n
	}
	return dst[:frames]
}

// EstimateBufferCapacity returns the mono sample count for seconds of audio.
func EstimateBufferCapacity(sampleRate, seconds int) int {
	return sampleRate * seconds
}
