// Package transcribe holds the speech recognition engines a recording
// session hands its finished 16 kHz mono audio to.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"murmur/internal/config"

	"github.com/sirupsen/logrus"
)

// ErrModelMissing is returned when the configured model file does not exist.
var ErrModelMissing = errors.New("model not found")

// Engine converts 16 kHz mono samples into text. Implementations are
// called from one session at a time but must tolerate calls from any goroutine.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, samples []float32) (string, error)
	Close() error
}

// Load builds the engine selected by asr.engine. The returned model id is
// recorded on every session that engine transcribes.
func Load(cfg *config.Config, logger *logrus.Logger) (Engine, string, error) {
	switch cfg.ASR.Engine {
	case config.EngineEcho:
		return NewEcho(cfg.ASR.EchoText), "echo", nil
	case config.EngineOpenAI:
		key := os.Getenv(cfg.ASR.OpenAI.APIKeyEnv)
		if strings.TrimSpace(key) == "" {
			return nil, "", fmt.Errorf("openai: %s is not set", cfg.ASR.OpenAI.APIKeyEnv)
		}
		e := NewOpenAI(OpenAIOptions{
			APIKey:     key,
			BaseURL:    cfg.ASR.OpenAI.BaseURL,
			Model:      cfg.ASR.OpenAI.Model,
			Language:   cfg.ASR.Language,
			TimeoutSec: cfg.ASR.OpenAI.Timeout,
		}, logger)
		return e, "openai/" + cfg.ASR.OpenAI.Model, nil
	case config.EngineWhisper, "":
		path := config.ModelPath(cfg, cfg.ASR.ModelPath)
		if _, err := os.Stat(path); err != nil {
			return nil, "", fmt.Errorf("%w at %s; run `murmur models download %s` or `murmur setup`", ErrModelMissing, path, cfg.ASR.ModelID)
		}
		e, err := NewWhisper(path, cfg.ASR.Language, cfg.ASR.Threads, logger)
		if err != nil {
			return nil, "", err
		}
		return e, cfg.ASR.ModelID, nil
	default:
		return nil, "", fmt.Errorf("unknown engine %q", cfg.ASR.Engine)
	}
}

// joinSegments concatenates recognizer segments with single spaces.
func joinSegments(segs []string) string {
	var b strings.Builder
	for _, s := range segs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(s)
	}
	return b.String()
}
