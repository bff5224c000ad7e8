// Package doctor checks that the host can run the murmur daemon.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"murmur/internal/audio"
	"murmur/internal/config"
	"murmur/internal/output"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkEngine(cfg),
		checkHookExecutable(cfg.Output.Hook.Command),
		checkPkgConfig("portaudio", "portaudio-2.0", "brew install portaudio / apt install portaudio19-dev"),
		checkPkgConfig("soxr", "soxr", "brew install libsoxr / apt install libsoxr-dev"),
		checkWritable("state dir", cfg.Paths.StateDir),
	}
	return append(results, checkAudioHost(audio.NewHost))
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkEngine(cfg *config.Config) Result {
	switch cfg.ASR.Engine {
	case config.EngineEcho:
		return Result{Name: "engine", Pass: true, Detail: "echo (testing only)"}
	case config.EngineOpenAI:
		env := cfg.ASR.OpenAI.APIKeyEnv
		if strings.TrimSpace(os.Getenv(env)) == "" {
			return Result{Name: "openai key", Pass: false, Detail: env + " is not set"}
		}
		return Result{Name: "openai key", Pass: true, Detail: env + " set, model " + cfg.ASR.OpenAI.Model}
	default:
		r := checkFile("model file", config.ModelPath(cfg, cfg.ASR.ModelPath))
		if !r.Pass {
			r.Detail += "; run `murmur setup`"
		}
		return r
	}
}

// checkHookExecutable passes when no hook is configured, since the hook is optional.
func checkHookExecutable(cmd string) Result {
	label := "output.hook"
	if strings.TrimSpace(cmd) == "" {
		return Result{Name: label, Pass: true, Detail: "not set"}
	}
	argv, err := output.ParseArgs(cmd)
	if err != nil || len(argv) == 0 {
		return Result{Name: label, Pass: false, Detail: fmt.Sprintf("cannot parse %q: %v", cmd, err)}
	}
	path := os.ExpandEnv(argv[0])
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set output.hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPkgConfig(name, pkgName, hint string) Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found"}
	}
	if err := exec.Command(pkg, "--exists", pkgName).Run(); err != nil {
		return Result{Name: name, Pass: false, Detail: pkgName + " not found (" + hint + ")"}
	}
	if out, err := exec.Command(pkg, "--modversion", pkgName).Output(); err == nil {
		return Result{Name: name, Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: name, Pass: true, Detail: "found via pkg-config"}
}

func checkWritable(label, dir string) Result {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return Result{Name: label, Pass: true, Detail: filepath.Clean(dir)}
}

func checkAudioHost(newHost func() (audio.Host, error)) Result {
	host, err := newHost()
	if err != nil {
		return Result{Name: "microphone", Pass: false, Detail: err.Error()}
	}
	defer func() { _ = host.Close() }()
	devs, err := audio.ListInputDevices(host)
	if err != nil {
		return Result{Name: "microphone", Pass: false, Detail: err.Error()}
	}
	if len(devs) == 0 {
		return Result{Name: "microphone", Pass: false, Detail: "no input devices"}
	}
	def := "no default"
	for _, d := range devs {
		if d.IsDefault {
			def = "default " + d.Name
		}
	}
	return Result{Name: "microphone", Pass: true, Detail: fmt.Sprintf("%d input device(s), %s", len(devs), def)}
}
