package control

import (
	"murmur/internal/audio"
	"murmur/internal/history"
	"murmur/internal/session"
)

// Control socket operations. Each connection carries one JSON request line
// and one JSON response line, except OpEvents which streams events after
// the response until the client hangs up.
const (
	OpStatus        = "status"
	OpHealth        = "health"
	OpStart         = "start"
	OpStop          = "stop"
	OpCancel        = "cancel"
	OpToggle        = "toggle"
	OpDevices       = "devices"
	OpSetDevice     = "set-device"
	OpReloadEngine  = "reload-engine"
	OpEvents        = "events"
	OpHistoryList   = "history.list"
	OpHistoryGet    = "history.get"
	OpHistoryDelete = "history.delete"
	OpHistoryClear  = "history.clear"
	OpHistoryAudio  = "history.audio"
)

type Request struct {
	Op     string `json:"op"`
	ID     string `json:"id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Device string `json:"device,omitempty"`
}

// Response is the single reply to a Request. Code carries the session
// error code when OK is false.
type Response struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`

	SessionID string             `json:"sessionId,omitempty"`
	Result    *session.Result    `json:"result,omitempty"`
	Status    *Status            `json:"status,omitempty"`
	Devices   []audio.DeviceInfo `json:"devices,omitempty"`
	History   []history.Entry    `json:"history,omitempty"`
	Entry     *history.Entry     `json:"entry,omitempty"`
	Audio     []byte             `json:"audio,omitempty"` // WAV, base64 on the wire
}

type Status struct {
	Running   bool             `json:"running"`
	UptimeSec float64          `json:"uptime_sec"`
	Mode      string           `json:"mode"`
	Engine    string           `json:"engine"`
	Session   session.Snapshot `json:"session"`
	Metrics   map[string]int64 `json:"metrics,omitempty"`
}

// Err converts a failed response back into an error; session codes are
// restored so callers can use errors.Is against the session sentinels.
func (r Response) Err() error {
	if r.OK {
		return nil
	}
	if r.Code != "" {
		return &session.Error{Code: session.Code(r.Code), Message: r.Message}
	}
	return &RemoteError{Message: r.Message}
}

// ErrorResponse renders err for the wire.
func ErrorResponse(err error) Response {
	return Response{OK: false, Code: string(session.CodeOf(err)), Message: err.Error()}
}

// RemoteError is a daemon-side failure without a session code.
type RemoteError struct{ Message string }

func (e *RemoteError) Error() string { return e.Message }
