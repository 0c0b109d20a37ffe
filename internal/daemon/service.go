package daemon

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"text/template"
)

const (
	launchdLabel = "com.allaspects.icarus"
	systemdUnit  = "icarus.service"
)

// launchdPlistTemplate runs the daemon as a persistent macOS user agent.
const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ProgramPath}}</string>
        <string>start</string>
        <string>--foreground</string>
{{- if .ConfigPath}}
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
{{- end}}
    </array>

    <key>WorkingDirectory</key>
    <string>{{.DataDir}}</string>

    <key>KeepAlive</key>
    <true/>

    <key>RunAtLoad</key>
    <true/>

    <key>StandardOutPath</key>
    <string>{{.DataDir}}/icarus.out.log</string>

    <key>StandardErrorPath</key>
    <string>{{.DataDir}}/icarus.err.log</string>

    <key>ProcessType</key>
    <string>Background</string>

    <key>ThrottleInterval</key>
    <integer>5</integer>
</dict>
</plist>
`

// systemdUnitTemplate runs the daemon as a systemd user service.
const systemdUnitTemplate = `[Unit]
Description=icarus analytics cache
After=network-online.target

[Service]
ExecStart={{.ProgramPath}} start --foreground{{if .ConfigPath}} --config {{.ConfigPath}}{{end}}
WorkingDirectory={{.DataDir}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

type unitData struct {
	Label       string
	ProgramPath string
	DataDir     string
	ConfigPath  string
}

func renderUnit(tmplText string, data unitData) ([]byte, error) {
	tmpl, err := template.New("unit").Parse(tmplText)
	if err != nil {
		return nil, fmt.Errorf("parsing unit template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering unit: %w", err)
	}
	return buf.Bytes(), nil
}

// unitPath returns where the service definition lives for goos.
func unitPath(goos, homeDir string) (string, error) {
	switch goos {
	case "darwin":
		return filepath.Join(homeDir, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(homeDir, ".config", "systemd", "user", systemdUnit), nil
	default:
		return "", fmt.Errorf("service install is not supported on %s", goos)
	}
}

// InstallService writes a launchd agent (macOS) or a systemd user unit
// (Linux) that runs "icarus start --foreground" and loads it.
func InstallService(dataDir, configPath string) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	path, err := unitPath(runtime.GOOS, homeDir)
	if err != nil {
		return err
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("determining executable path: %w", err)
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return fmt.Errorf("resolving executable symlinks: %w", err)
	}

	dataDir = expandHome(dataDir)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}

	tmplText := systemdUnitTemplate
	if runtime.GOOS == "darwin" {
		tmplText = launchdPlistTemplate
	}
	body, err := renderUnit(tmplText, unitData{
		Label:       launchdLabel,
		ProgramPath: execPath,
		DataDir:     dataDir,
		ConfigPath:  configPath,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("Service definition written to %s\n", path)

	if runtime.GOOS == "darwin" {
		// Unload first; errors mean it was not loaded.
		_ = exec.Command("launchctl", "unload", path).Run()
		return runVisible("launchctl", "load", path)
	}
	if err := runVisible("systemctl", "--user", "daemon-reload"); err != nil {
		return err
	}
	return runVisible("systemctl", "--user", "enable", "--now", systemdUnit)
}

// UninstallService stops the service and removes its definition.
func UninstallService() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}
	path, err := unitPath(runtime.GOOS, homeDir)
	if err != nil {
		return err
	}

	if runtime.GOOS == "darwin" {
		_ = exec.Command("launchctl", "unload", path).Run()
	} else {
		_ = exec.Command("systemctl", "--user", "disable", "--now", systemdUnit).Run()
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	fmt.Printf("Service removed (%s)\n", path)
	return nil
}

func runVisible(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %v: %w", name, args, err)
	}
	return nil
}
