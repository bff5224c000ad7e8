package transcribe

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"murmur/internal/audio"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

// OpenAIOptions configures the hosted transcription engine.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // empty uses the public API
	Model      string // e.g. whisper-1
	Language   string
	TimeoutSec int
}

type openaiEngine struct {
	client  openai.Client
	opts    OpenAIOptions
	timeout time.Duration
	logger  *logrus.Logger
}

// NewOpenAI returns an engine that uploads each recording as a WAV file to
// the audio transcriptions endpoint.
func NewOpenAI(opts OpenAIOptions, logger *logrus.Logger) Engine {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Model == "" {
		opts.Model = "whisper-1"
	}
	timeout := time.Duration(opts.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openaiEngine{
		client:  openai.NewClient(reqOpts...),
		opts:    opts,
		timeout: timeout,
		logger:  logger,
	}
}

func (e *openaiEngine) Name() string { return "openai" }

func (e *openaiEngine) Transcribe(ctx context.Context, samples []float32) (string, error) {
	tmp, err := os.CreateTemp("", "murmur-*.wav")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if err := audio.EncodeWAV(tmp, samples, audio.TargetRate); err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(tmp, "audio.wav", "audio/wav"),
		Model: openai.AudioModel(e.opts.Model),
	}
	if e.opts.Language != "" {
		params.Language = openai.String(e.opts.Language)
	}
	start := time.Now()
	resp, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	e.logger.Debugf("openai transcription took %s", time.Since(start))
	return joinSegments([]string{resp.Text}), nil
}

func (e *openaiEngine) Close() error { return nil }
