package transcribe

import (
	"context"
	"sync/atomic"
)

// Echo returns a fixed string for any input. It stands in for a real model
// in tests and in `asr.engine = "echo"` dry runs.
type Echo struct {
	text  string
	calls atomic.Int64
	Err   error // returned instead of text when set
}

// NewEcho returns an Echo engine replying text.
func NewEcho(text string) *Echo {
	return &Echo{text: text}
}

func (e *Echo) Name() string { return "echo" }

func (e *Echo) Transcribe(ctx context.Context, _ []float32) (string, error) {
	e.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.Err != nil {
		return "", e.Err
	}
	return e.text, nil
}

// Calls reports how many times Transcribe ran.
func (e *Echo) Calls() int64 { return e.calls.Load() }

func (e *Echo) Close() error { return nil }
