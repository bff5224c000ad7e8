package session

// EventType names a session lifecycle notification.
type EventType string

const (
	EventRecordingStarted       EventType = "RecordingStarted"
	EventRecordingStopped       EventType = "RecordingStopped"
	EventRecordingCancelled     EventType = "RecordingCancelled"
	EventAmplitudeUpdate        EventType = "AmplitudeUpdate"
	EventTranscriptionStarted   EventType = "TranscriptionStarted"
	EventTranscriptionCompleted EventType = "TranscriptionCompleted"
	EventTranscriptionFailed    EventType = "TranscriptionFailed"
)

// Event is delivered to an EventSink. Only the fields relevant to Type are set.
type Event struct {
	Type       EventType `json:"type"`
	SessionID  string    `json:"sessionId,omitempty"`
	Amplitudes []float32 `json:"amplitudes,omitempty"`
	RMS        float32   `json:"rms,omitempty"`
	Text       string    `json:"text,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// EventSink receives session events. Emit may be called from the audio
// thread for AmplitudeUpdate and must never block.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

type discardSink struct{}

func (discardSink) Emit(Event) {}
