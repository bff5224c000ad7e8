package session

import "errors"

// Code is the stable machine-readable kind of a command error.
type Code string

const (
	CodeNoModelSelected       Code = "NoModelSelected"
	CodeAlreadyRecording      Code = "AlreadyRecording"
	CodeNotRecording          Code = "NotRecording"
	CodeMicrophoneUnavailable Code = "MicrophoneUnavailable"
	CodeDeviceEnumeration     Code = "DeviceEnumeration"
	CodeTranscriptionFailed   Code = "TranscriptionFailed"
)

// Error is returned by every Manager command. Compare with errors.Is
// against the Err* sentinels; only the code is compared.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrNoModelSelected       = &Error{Code: CodeNoModelSelected, Message: "no transcription model selected"}
	ErrAlreadyRecording      = &Error{Code: CodeAlreadyRecording, Message: "already recording"}
	ErrNotRecording          = &Error{Code: CodeNotRecording, Message: "not recording"}
	ErrMicrophoneUnavailable = &Error{Code: CodeMicrophoneUnavailable, Message: "microphone unavailable"}
	ErrDeviceEnumeration     = &Error{Code: CodeDeviceEnumeration, Message: "device enumeration failed"}
	ErrTranscriptionFailed   = &Error{Code: CodeTranscriptionFailed, Message: "transcription failed"}
)

// CodeOf extracts the code from err, or "" when err is not a session error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}
