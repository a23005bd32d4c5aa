package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/MrWong99/jarvis/internal/appindex"
)

// Opener hands a URL or a folder path to the desktop environment.
type Opener interface {
	Open(ctx context.Context, target string) error
}

// Launcher starts an indexed application.
type Launcher interface {
	Launch(ctx context.Context, app appindex.Entry) error
}

// SystemOpener opens targets with the platform's default handler:
// xdg-open on Linux and BSDs, open on macOS, and on Windows rundll32 for
// URLs or explorer for paths.
type SystemOpener struct {
	// GOOS selects the platform. Empty means runtime.GOOS.
	GOOS string
}

// Command returns the program and arguments used to open target.
func (o SystemOpener) Command(target string) (string, []string) {
	goos := o.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	switch goos {
	case "darwin":
		return "open", []string{target}
	case "windows":
		if strings.HasPrefix(target, "http") {
			return "rundll32", []string{"url.dll,FileProtocolHandler", target}
		}
		return "explorer", []string{target}
	default:
		return "xdg-open", []string{target}
	}
}

// Open starts the handler and returns once it is running.
func (o SystemOpener) Open(_ context.Context, target string) error {
	name, args := o.Command(target)
	return startDetached(name, args...)
}

// ProcessLauncher starts applications with [appindex.Entry.Command].
type ProcessLauncher struct{}

// Launch starts app and returns once the process is running.
func (ProcessLauncher) Launch(_ context.Context, app appindex.Entry) error {
	name, args := app.Command()
	return startDetached(name, args...)
}

// startDetached starts a process that outlives the request that created it
// and reaps it in the background.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("executor: start %s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("launched process exited with error", "cmd", name, "error", err)
		}
	}()
	return nil
}
