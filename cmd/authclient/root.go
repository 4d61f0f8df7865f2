package main

import (
	"errors"
	"io"
	"net/http"

	"github.com/jrsteele09/go-auth-client/authorization"
	"github.com/jrsteele09/go-auth-client/internal/app"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/logger"
	"github.com/jrsteele09/go-auth-client/session"
	"github.com/spf13/cobra"
)

// Exit codes for scripting.
const (
	ExitCodeSuccess = 0
	// ExitCodeError is any failure not covered below, including configuration errors.
	ExitCodeError = 1
	// ExitCodeAuthRequired means there are no usable credentials; run login.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed means the interactive login did not produce credentials.
	ExitCodeAuthFailed = 3
)

type cli struct {
	out         io.Writer
	app         *app.App
	openBrowser func(url string) error
	httpClient  *http.Client
}

func newCLI(out io.Writer) *cli {
	return &cli{out: out, openBrowser: openBrowser}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "authclient",
		Short: "Sign in to an OpenID Connect provider and call protected APIs",
		Long: `authclient signs in with the authorization code flow and PKCE, keeps the
resulting credentials in a local secure store and attaches them to API calls,
refreshing them once when the API answers 401.

Configuration is read from the environment and from a .env file in the working
directory: ISSUER_URL and CLIENT_ID are required.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return err
			}
			l := logger.New(cfg.GetEnv(), cfg.GetLogLevel())
			opts := []app.Option{app.WithLogger(l)}
			if c.httpClient != nil {
				opts = append(opts, app.WithHTTPClient(c.httpClient))
			}
			c.app, err = app.New(cmd.Context(), cfg, opts...)
			return err
		},
	}
	root.AddCommand(newLoginCmd(c), newLogoutCmd(c), newStatusCmd(c), newCallCmd(c))
	return root
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, session.ErrReauthenticationRequired):
		return ExitCodeAuthRequired
	case errors.Is(err, errLoginDenied),
		errors.Is(err, errLoginCancelled),
		errors.Is(err, authorization.ErrTokenExchange),
		errors.Is(err, authorization.ErrStateMismatch):
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}
