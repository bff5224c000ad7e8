// Package service installs murmur as a per-user background agent: a
// launchd plist on macOS or a systemd user unit on Linux.
package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"text/template"
)

// Label identifies the agent to launchd; the systemd unit is named after it.
const Label = "com.murmur.agent"

// ErrUnsupportedOS is returned on platforms without a supported agent manager.
var ErrUnsupportedOS = errors.New("service install supports macOS (launchd) and Linux (systemd --user)")

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>start</string>
    <string>--config</string>
    <string>{{.Config}}</string>
    <string>--foreground</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>ProcessType</key><string>Interactive</string>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=murmur dictation daemon
After=graphical-session.target sound.target

[Service]
ExecStart="{{.Binary}}" start --config "{{.Config}}" --foreground
Restart=on-failure
RestartSec=3
{{- range $k, $v := .Env }}
Environment="{{$k}}={{$v}}"
{{- end }}

[Install]
WantedBy=default.target
`

// Params fills the agent templates.
type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Manager writes agent definitions for one platform.
type Manager struct {
	GOOS string
	Home string
}

// Current returns a Manager for this machine.
func Current() Manager {
	home, _ := os.UserHomeDir()
	return Manager{GOOS: runtime.GOOS, Home: home}
}

// Path returns where the agent definition for label lives.
func (m Manager) Path(label string) (string, error) {
	switch m.GOOS {
	case "darwin":
		return filepath.Join(m.Home, "Library", "LaunchAgents", label+".plist"), nil
	case "linux":
		return filepath.Join(m.Home, ".config", "systemd", "user", unitName(label)), nil
	default:
		return "", ErrUnsupportedOS
	}
}

func unitName(label string) string {
	if label == Label {
		return "murmur.service"
	}
	return label + ".service"
}

// Install writes the agent definition and returns its path.
func (m Manager) Install(p Params) (string, error) {
	path, err := m.Path(p.Label)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := m.Render(f, p); err != nil {
		return "", err
	}
	return path, f.Close()
}

// Render writes the platform's agent definition to w.
func (m Manager) Render(w io.Writer, p Params) error {
	src := launchdTemplate
	if m.GOOS == "linux" {
		src = systemdTemplate
	}
	tpl, err := template.New("agent").Parse(src)
	if err != nil {
		return err
	}
	return tpl.Execute(w, p)
}

// Uninstall removes the agent definition. A missing file is not an error.
func (m Manager) Uninstall(label string) (string, error) {
	path, err := m.Path(label)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return path, err
	}
	return path, nil
}

// Status returns the definition path and whether it exists.
func (m Manager) Status(label string) (string, bool) {
	path, err := m.Path(label)
	if err != nil {
		return "", false
	}
	_, err = os.Stat(path)
	return path, err == nil
}

// Hints are the commands a user runs after Install, per platform.
func (m Manager) Hints(label, path string) []string {
	if m.GOOS == "linux" {
		unit := unitName(label)
		return []string{
			"Reload: systemctl --user daemon-reload",
			"Enable: systemctl --user enable --now " + unit,
			"Stop:   systemctl --user stop " + unit,
		}
	}
	return []string{
		"Load:   launchctl load -w " + path,
		fmt.Sprintf("Start:  launchctl kickstart gui/$(id -u)/%s", label),
		fmt.Sprintf("Stop:   launchctl bootout gui/$(id -u)/%s", label),
	}
}
