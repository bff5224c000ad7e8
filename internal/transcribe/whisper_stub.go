//go:build !whisper

package transcribe

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// NewWhisper is unavailable without the whisper build tag.
func NewWhisper(_, _ string, _ int, _ *logrus.Logger) (Engine, error) {
	return nil, errors.New("whisper support not built; rebuild with -tags whisper or set asr.engine")
}
