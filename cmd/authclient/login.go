package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-client/authorization"
	"github.com/spf13/cobra"
)

func newLoginCmd(c *cli) *cobra.Command {
	var (
		idp       string
		noBrowser bool
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in through the browser",
		Long: `Sign in with the authorization code flow and PKCE.

The authorization URL is printed and opened in the default browser. The provider
redirects back to REDIRECT_URI, which must be a loopback http address this
command can listen on.

Examples:
  authclient login
  authclient login --idp google
  authclient login --no-browser --timeout 2m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if idp == "" {
				idp = c.app.Config.GetIdentityProviderHint()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return c.login(ctx, idp, !noBrowser)
		},
	}
	cmd.Flags().StringVar(&idp, "idp", "", "identity provider hint sent as identity_provider (default IDENTITY_PROVIDER)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the authorization URL without opening a browser")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for the browser redirect")
	return cmd
}

func (c *cli) login(ctx context.Context, idp string, launch bool) error {
	displayAppname(c.out, c.app.Config.GetAppName())

	receiver, err := newCallbackReceiver(c.app.Config.GetRedirectURI())
	if err != nil {
		return err
	}
	defer receiver.close()

	desc, err := c.app.Authorization.Begin(ctx, idp)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Open this URL to sign in:\n\n  %s\n\n", desc.URL)
	if launch {
		if err := c.openBrowser(desc.URL); err != nil {
			fmt.Fprintf(c.out, "Could not open a browser (%s). Open the URL manually.\n", err)
		}
	}

	for {
		params, err := receiver.wait(ctx)
		if err != nil {
			c.app.Authorization.Abandon()
			return err
		}
		// The wait is over; the exchange is bounded by HTTP_TIMEOUT instead of --timeout.
		res, err := c.app.Authorization.Complete(context.WithoutCancel(ctx), params)
		if errors.Is(err, authorization.ErrStateMismatch) {
			fmt.Fprintln(c.out, "Ignoring a redirect from an earlier sign-in attempt.")
			continue
		}
		if err != nil {
			return err
		}
		switch res.Outcome {
		case authorization.OutcomeDenied:
			return fmt.Errorf("%w: %s %s", errLoginDenied, res.Error, res.ErrorDescription)
		case authorization.OutcomeCancelled:
			return errLoginCancelled
		}
		fmt.Fprintf(c.out, "Signed in. Access token expires %s.\n", formatExpiry(res.State.AccessTokenExpiry))
		return nil
	}
}
