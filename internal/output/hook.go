// Package output delivers finished transcripts: a user hook command and
// the system clipboard.
package output

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Job is one transcript to deliver.
type Job struct {
	SessionID string
	Text      string
	Timestamp time.Time
}

// HookOptions mirrors the [output.hook] config section.
type HookOptions struct {
	Command     string // may carry arguments, split shell-style
	Args        []string
	Prefix      string // ${hostname} is expanded
	TimeoutSec  float64
	CooldownSec float64 // minimum gap between runs
	RedactPII   bool    // mask emails and phone numbers in the payload
	Env         map[string]string
}

// Hook runs the configured command with the transcript as its last argument.
type Hook struct {
	opts     HookOptions
	logger   *logrus.Logger
	hostname string

	mu      sync.Mutex
	lastRun time.Time
}

func NewHook(opts HookOptions, logger *logrus.Logger) *Hook {
	host, _ := os.Hostname()
	return &Hook{opts: opts, logger: logger, hostname: host}
}

// Enabled reports whether a command is configured.
func (h *Hook) Enabled() bool { return strings.TrimSpace(h.opts.Command) != "" }

// ShouldRun reports whether the cooldown allows another run.
func (h *Hook) ShouldRun() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts.CooldownSec <= 0 {
		return true
	}
	return time.Since(h.lastRun).Seconds() >= h.opts.CooldownSec
}

// Run executes the hook for job.
func (h *Hook) Run(ctx context.Context, job Job) error {
	h.mu.Lock()
	h.lastRun = time.Now()
	h.mu.Unlock()

	text := job.Text
	if h.opts.RedactPII {
		text = redactPII(text)
	}
	argv, err := ParseArgs(h.opts.Command)
	if err != nil {
		return fmt.Errorf("parse hook.command: %w", err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("no output.hook.command configured")
	}
	args := append(argv[1:], h.opts.Args...)

	prefix := strings.ReplaceAll(h.opts.Prefix, "${hostname}", h.hostname)
	payload := strings.TrimSpace(prefix + text)
	args = append(args, payload)

	runCtx := ctx
	if h.opts.TimeoutSec > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(float64(time.Second)*h.opts.TimeoutSec))
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, argv[0], args...)
	cmd.Env = os.Environ()
	for k, v := range h.opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		"MURMUR_TEXT="+text,
		"MURMUR_PREFIX="+prefix,
		"MURMUR_SESSION_ID="+job.SessionID,
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		h.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs splits a command line the way a POSIX shell would.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	return phoneRE.ReplaceAllString(s, "[redacted-phone]")
}
