package transport

import (
	"fmt"
	"os/exec"
	"runtime"
)

// Process is a started external program.
type Process interface {
	Wait() error
	Kill() error
}

// StartFunc starts an external program without waiting for it.
type StartFunc func(name string, args ...string) (Process, error)

type cmdProcess struct {
	cmd *exec.Cmd
}

func (p cmdProcess) Wait() error { return p.cmd.Wait() }
func (p cmdProcess) Kill() error { return p.cmd.Process.Kill() }

// startCommand is the default StartFunc.
func startCommand(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmdProcess{cmd: cmd}, nil
}

// systemOpener returns the command opening a URL with the default handler
// of the platform.
func systemOpener(goos string) (string, []string, error) {
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", nil, nil
	case "darwin":
		return "open", nil, nil
	case "windows":
		return "cmd", []string{"/c", "start", ""}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// tabBrowsers are Chromium-family browsers supporting app-mode windows, in
// order of preference.
var tabBrowsers = []string{
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
	"microsoft-edge",
	"brave-browser",
}

// options are shared by all transports.
type options struct {
	lookPath func(string) (string, error)
	start    StartFunc
	goos     string
}

func defaultOptions() options {
	return options{
		lookPath: exec.LookPath,
		start:    startCommand,
		goos:     runtime.GOOS,
	}
}

// Option configures a transport.
type Option func(*options)

// WithLookPath replaces the executable lookup used during Prepare.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(o *options) {
		o.lookPath = fn
	}
}

// WithStart replaces how external programs are started.
func WithStart(fn StartFunc) Option {
	return func(o *options) {
		o.start = fn
	}
}

// WithGOOS overrides the platform used to pick the system opener.
func WithGOOS(goos string) Option {
	return func(o *options) {
		o.goos = goos
	}
}
