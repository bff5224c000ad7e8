//go:build whisper

package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"
)

type whisperEngine struct {
	mu       sync.Mutex
	model    whisper.Model
	language string
	threads  int
	logger   *logrus.Logger
}

// NewWhisper loads a ggml model for local inference.
func NewWhisper(path, language string, threads int, logger *logrus.Logger) (Engine, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	logger.Infof("loaded whisper model %s", path)
	return &whisperEngine{model: model, language: strings.TrimSpace(language), threads: threads, logger: logger}, nil
}

func (e *whisperEngine) Name() string { return "whisper" }

func (e *whisperEngine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return "", errors.New("whisper model closed")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wctx, err := e.model.NewContext()
	if err != nil {
		return "", err
	}
	if e.language != "" {
		if err := wctx.SetLanguage(e.language); err != nil {
			e.logger.Warnf("set language: %v", err)
		}
	}
	if e.threads > 0 {
		wctx.SetThreads(uint(e.threads))
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", err
	}
	var segs []string
	for {
		seg, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", err
		}
		segs = append(segs, seg.Text)
	}
	return joinSegments(segs), nil
}

func (e *whisperEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	return err
}
