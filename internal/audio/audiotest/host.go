// Package audiotest provides an in-memory audio.Host for tests.
package audiotest

import (
	"errors"
	"sync"

	"murmur/internal/audio"
)

// Host is a scriptable audio.Host. Feed drives the active stream's
// callback synchronously, the way a hardware thread would.
type Host struct {
	mu        sync.Mutex
	Devices   []audio.Device
	Default   string // name of the default device; empty means none
	ListErr   error
	OpenErr   error
	StartErr  error
	opened    []*Stream
	closedAll bool
}

// New returns a host with a default stereo 48 kHz device and a mono 44.1 kHz one.
func New() *Host {
	return &Host{
		Devices: []audio.Device{
			{Name: "Built-in Microphone", Channels: 2, SampleRate: 48000},
			{Name: "USB Mic", Channels: 1, SampleRate: 44100},
		},
		Default: "Built-in Microphone",
	}
}

func (h *Host) InputDevices() ([]audio.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ListErr != nil {
		return nil, h.ListErr
	}
	return append([]audio.Device(nil), h.Devices...), nil
}

func (h *Host) DefaultInputDevice() (audio.Device, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.Devices {
		if d.Name == h.Default {
			return d, nil
		}
	}
	return audio.Device{}, audio.ErrNoDevice
}

func (h *Host) OpenInput(dev audio.Device, onInput audio.InputFunc, onError func(error)) (audio.Stream, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.OpenErr != nil {
		return nil, h.OpenErr
	}
	s := &Stream{Device: dev, onInput: onInput, onError: onError, startErr: h.StartErr}
	h.opened = append(h.opened, s)
	return s, nil
}

func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closedAll = true
	return nil
}

// Last returns the most recently opened stream, or nil.
func (h *Host) Last() *Stream {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.opened) == 0 {
		return nil
	}
	return h.opened[len(h.opened)-1]
}

// Opened returns how many streams were opened.
func (h *Host) Opened() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.opened)
}

// Stream is a fake input stream.
type Stream struct {
	Device audio.Device

	mu       sync.Mutex
	onInput  audio.InputFunc
	onError  func(error)
	startErr error
	started  bool
	closed   bool
}

var errClosed = errors.New("stream closed")

func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Feed delivers one interleaved buffer to the capture callback. It returns
// an error once the stream is closed, mirroring a released device.
func (s *Stream) Feed(in []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return errClosed
	}
	s.onInput(in)
	return nil
}

// Fail reports a hardware error through the stream's error callback.
func (s *Stream) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onError != nil {
		s.onError(err)
	}
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
