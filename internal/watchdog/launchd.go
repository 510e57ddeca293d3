package watchdog

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"text/template"
)

// Launchd drives macOS's launchd via the launchctl binary, mirroring the
// teacher's NDSCtl: a thin os/exec wrapper around one platform tool.
type Launchd struct {
	binaryPath string // override for tests; defaults to "launchctl"
}

func (l *Launchd) bin() string {
	if l.binaryPath != "" {
		return l.binaryPath
	}
	return "launchctl"
}

func (l *Launchd) Name() string { return "launchd" }

var launchdPlistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinaryPath}}</string>
		{{range .Args}}<string>{{.}}</string>
		{{end}}
	</array>
	<key>StartInterval</key>
	<integer>{{.IntervalSeconds}}</integer>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`))

func (l *Launchd) plistPath(label string) (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("watchdog: current user: %w", err)
	}
	return filepath.Join(u.HomeDir, "Library", "LaunchAgents", label+".plist"), nil
}

func (l *Launchd) Install(spec InstallSpec) error {
	path, err := l.plistPath(spec.Label)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	err = launchdPlistTemplate.Execute(&buf, struct {
		Label           string
		BinaryPath      string
		Args            []string
		IntervalSeconds int
	}{spec.Label, spec.BinaryPath, spec.Args, int(spec.Interval.Seconds())})
	if err != nil {
		return fmt.Errorf("watchdog: render plist: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("watchdog: mkdir: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("watchdog: write plist: %w", err)
	}
	return l.exec("load", "-w", path)
}

func (l *Launchd) Uninstall(spec InstallSpec) error {
	path, err := l.plistPath(spec.Label)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return ErrNotInstalled
	}
	if err := l.exec("unload", path); err != nil {
		return err
	}
	return os.Remove(path)
}

func (l *Launchd) Status(spec InstallSpec) (bool, error) {
	path, err := l.plistPath(spec.Label)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("watchdog: stat plist: %w", err)
	}
	out, err := exec.Command(l.bin(), "list", spec.Label).CombinedOutput()
	if err != nil {
		return false, nil // plist present but not loaded
	}
	return len(out) > 0, nil
}

func (l *Launchd) exec(args ...string) error {
	out, err := exec.Command(l.bin(), args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("watchdog: launchctl %v: %w: %s", args, err, string(out))
	}
	return nil
}
