//go:build whisper

package audio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

type portaudioHost struct {
	mu     sync.Mutex
	closed bool
}

// NewHost initializes PortAudio. Close must be called to terminate it.
func NewHost() (Host, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	return &portaudioHost{}, nil
}

func toDevice(d *portaudio.DeviceInfo) Device {
	return Device{
		Name:       d.Name,
		Channels:   d.MaxInputChannels,
		SampleRate: int(d.DefaultSampleRate),
	}
}

func (h *portaudioHost) InputDevices() ([]Device, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(devs))
	for _, d := range devs {
		if d == nil || d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, toDevice(d))
	}
	return out, nil
}

func (h *portaudioHost) DefaultInputDevice() (Device, error) {
	d, err := portaudio.DefaultInputDevice()
	if err != nil {
		return Device{}, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	if d == nil || d.MaxInputChannels < 1 {
		return Device{}, ErrNoDevice
	}
	return toDevice(d), nil
}

func (h *portaudioHost) OpenInput(dev Device, onInput InputFunc, onError func(error)) (Stream, error) {
	info, err := h.lookup(dev.Name)
	if err != nil {
		return nil, err
	}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: dev.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(dev.SampleRate),
		FramesPerBuffer: portaudio.FramesPerBufferUnspecified,
	}
	cb := func(in []float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		if flags&portaudio.InputOverflow != 0 && onError != nil {
			onError(portaudio.InputOverflowed)
		}
		onInput(in)
	}
	stream, err := portaudio.OpenStream(params, cb)
	if err != nil {
		return nil, err
	}
	return &portaudioStream{stream: stream}, nil
}

func (h *portaudioHost) lookup(name string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devs {
		if d != nil && d.MaxInputChannels > 0 && d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device %q disappeared", name)
}

func (h *portaudioHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return portaudio.Terminate()
}

type portaudioStream struct {
	stream *portaudio.Stream
	once   sync.Once
}

func (s *portaudioStream) Start() error {
	return s.stream.Start()
}

// Close stops the stream (waiting for the callback to return) then frees it.
func (s *portaudioStream) Close() error {
	var err error
	s.once.Do(func() {
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	})
	return err
}
