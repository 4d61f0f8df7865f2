package main

import (
	"fmt"
	"os/exec"
	"runtime"

	internalerrors "github.com/jrsteele09/go-auth-client/internal/errors"
)

// openBrowser starts the platform's URL handler without waiting for it.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return internalerrors.Wrapf(internalerrors.ErrUnsupported, "open browser on %s", runtime.GOOS)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
