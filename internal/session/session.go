// Package session runs the recording state machine: start capture, stop and
// transcribe, or cancel, under concurrent calls from hotkeys, the control
// socket and the audio thread.
package session

import (
	"context"
	"time"
)

// Status is the lifecycle stage of one recording session.
type Status string

const (
	StatusRecording    Status = "Recording"
	StatusTranscribing Status = "Transcribing"
	StatusCompleted    Status = "Completed"
	StatusFailed       Status = "Failed"
)

// Record describes one session. Error is set only for StatusFailed.
type Record struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt,omitzero"`
	DurationMs    int64     `json:"durationMs"`
	Status        Status    `json:"status"`
	ModelID       string    `json:"modelId,omitempty"`
	Device        string    `json:"device,omitempty"`
	Transcription string    `json:"transcription,omitempty"`
	Error         string    `json:"error,omitempty"`
}

// Result is what a successful stop returns. DurationMs covers resampling
// and inference; RecordingDurationMs is the captured wall-clock time.
type Result struct {
	SessionID           string `json:"sessionId"`
	Text                string `json:"text"`
	DurationMs          int64  `json:"durationMs"`
	RecordingDurationMs int64  `json:"recordingDurationMs"`
	ModelID             string `json:"modelId,omitempty"`
}

// Handoff is passed to the history collaborator after a successful stop.
type Handoff struct {
	SessionID               string
	Text                    string
	Samples                 []float32 // 16 kHz mono
	SampleRate              int
	ModelID                 string
	Device                  string
	RecordingDurationMs     int64
	TranscriptionDurationMs int64
	CreatedAt               time.Time
}

// HistorySink stores finished sessions. Failures are logged by the manager
// and never retried.
type HistorySink interface {
	Save(ctx context.Context, h Handoff) error
}

// Engine is the transcription capability a session hands 16 kHz mono
// audio to.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Close() error
}

// Snapshot is a point-in-time view of the manager for status displays.
type Snapshot struct {
	Recording    bool    `json:"recording"`
	SessionID    string  `json:"sessionId,omitempty"`
	ElapsedMs    int64   `json:"elapsedMs,omitempty"`
	Transcribing int     `json:"transcribing"`
	EngineLoaded bool    `json:"engineLoaded"`
	ModelID      string  `json:"modelId,omitempty"`
	Device       string  `json:"device,omitempty"`
	Last         *Record `json:"last,omitempty"`
}
