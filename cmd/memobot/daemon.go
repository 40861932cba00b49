package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/spf13/cobra"
)

const launchdLabel = "com.memobot.gateway"

// serviceFile is one OS's service definition: where it lives, the template
// that renders it, and the commands to manage it afterwards.
type serviceFile struct {
	path   string
	tmpl   string
	data   map[string]string
	logDir string
	hints  []string
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Install or remove memobot as a system daemon",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install memobot as a system daemon (launchd/systemd)",
		Long:  "Writes a user-level service file so the memobot gateway starts with the session and restarts on failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceForOS()
			if err != nil {
				return err
			}
			return svc.install()
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the memobot system daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := serviceForOS()
			if err != nil {
				return err
			}
			return svc.uninstall()
		},
	}
}

func serviceForOS() (*serviceFile, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("cannot determine executable path: %w", err)
	}
	home, _ := os.UserHomeDir()

	switch runtime.GOOS {
	case "darwin":
		return launchdService(execPath, resolveConfigPath(), home), nil
	case "linux":
		return systemdService(execPath, resolveConfigPath(), home), nil
	default:
		return nil, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
	}
}

func launchdService(execPath, cfgPath, home string) *serviceFile {
	logDir := filepath.Join(home, ".memobot", "logs")
	path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	return &serviceFile{
		path:   path,
		tmpl:   launchdTemplate,
		logDir: logDir,
		data: map[string]string{
			"Label":  launchdLabel,
			"Exec":   execPath,
			"Config": cfgPath,
			"Log":    filepath.Join(logDir, "memobot.log"),
			"ErrLog": filepath.Join(logDir, "memobot-error.log"),
		},
		hints: []string{
			"start: launchctl load " + path,
			"stop:  launchctl unload " + path,
		},
	}
}

func systemdService(execPath, cfgPath, home string) *serviceFile {
	return &serviceFile{
		path: filepath.Join(home, ".config", "systemd", "user", "memobot.service"),
		tmpl: systemdTemplate,
		data: map[string]string{
			"Exec":   execPath,
			"Config": cfgPath,
		},
		hints: []string{
			"start:  systemctl --user start memobot",
			"enable: systemctl --user enable memobot",
			"stop:   systemctl --user stop memobot",
		},
	}
}

func (s *serviceFile) render() ([]byte, error) {
	tmpl, err := template.New("service").Parse(s.tmpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, s.data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *serviceFile) install() error {
	content, err := s.render()
	if err != nil {
		return fmt.Errorf("render service file: %w", err)
	}
	if s.logDir != "" {
		os.MkdirAll(s.logDir, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(s.path, content, 0o644); err != nil {
		return err
	}

	fmt.Printf("Service file written: %s\n", s.path)
	for _, hint := range s.hints {
		fmt.Println("  " + hint)
	}
	return nil
}

func (s *serviceFile) uninstall() error {
	if err := os.Remove(s.path); err != nil {
		return fmt.Errorf("remove service file: %w", err)
	}
	fmt.Printf("Service file removed: %s\n", s.path)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.Exec}}</string>
        <string>gateway</string>
        <string>--config</string>
        <string>{{.Config}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{.Log}}</string>
    <key>StandardErrorPath</key>
    <string>{{.ErrLog}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=Memobot note-taking gateway
After=network.target

[Service]
Type=simple
ExecStart={{.Exec}} gateway --config {{.Config}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
