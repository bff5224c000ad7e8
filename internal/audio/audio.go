// Package audio captures microphone input, derives visualization frames
// from it, and converts finished recordings to the rate recognizers expect.
package audio

import "errors"

// TargetRate is the sample rate every transcription engine consumes.
const TargetRate = 16000

var (
	// ErrMicrophoneUnavailable is returned when no input stream could be opened.
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrDeviceEnumeration is returned when the host cannot list devices.
	ErrDeviceEnumeration = errors.New("device enumeration failed")
	// ErrResamplingFailed is returned when conversion to TargetRate fails.
	ErrResamplingFailed = errors.New("resampling failed")
	// ErrNoDevice is returned by hosts without any input device.
	ErrNoDevice = errors.New("no input device available")
	// ErrUnsupported is returned by the stub host in builds without PortAudio.
	ErrUnsupported = errors.New("audio capture not supported in this build (build with -tags whisper)")
)

// Device is an input-capable device as reported by a Host.
type Device struct {
	Name       string
	Channels   int // native default channel count
	SampleRate int // native default sample rate
}

// InputFunc receives one hardware buffer of interleaved float32 samples.
// It runs on the audio thread and must not block.
type InputFunc func(in []float32)

// Stream is a live hardware input stream.
type Stream interface {
	Start() error
	// Close stops the stream and releases the device. No InputFunc call is
	// in flight once Close returns.
	Close() error
}

// Host is the audio subsystem: device listing plus stream construction.
type Host interface {
	InputDevices() ([]Device, error)
	DefaultInputDevice() (Device, error)
	OpenInput(dev Device, onInput InputFunc, onError func(error)) (Stream, error)
	Close() error
}
