package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-auth-client/session"
	"github.com/spf13/cobra"
)

func newCallCmd(c *cli) *cobra.Command {
	var (
		requirement string
		data        string
		headers     []string
	)
	cmd := &cobra.Command{
		Use:   "call METHOD URL",
		Short: "Send an authenticated request",
		Long: `Send a request carrying the credential named by --auth and print the response body.

--auth is one of none, access_token, id_token or access_token_with_device_token.
A 401 is answered by one refresh and one replay, except for none and
access_token_with_device_token requests.

Examples:
  authclient call GET https://api.example.com/me
  authclient call POST https://api.example.com/register --auth id_token -d '{"name":"x"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, ok := session.ParseRequirement(requirement)
			if !ok {
				return fmt.Errorf("unknown --auth value %q", requirement)
			}
			var body io.Reader
			if data != "" {
				body = strings.NewReader(data)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), strings.ToUpper(args[0]), args[1], body)
			if err != nil {
				return err
			}
			for _, h := range headers {
				name, value, ok := strings.Cut(h, ":")
				if !ok {
					return fmt.Errorf("malformed header %q, want Name: value", h)
				}
				req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
			}

			resp, err := c.app.Client.Do(req, r)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if _, err := io.Copy(c.out, resp.Body); err != nil {
				return err
			}
			if resp.StatusCode == http.StatusUnauthorized {
				return fmt.Errorf("%w: %s", session.ErrReauthenticationRequired, resp.Status)
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("request failed: %s", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&requirement, "auth", session.AccessToken.String(), "credential to attach")
	cmd.Flags().StringVarP(&data, "data", "d", "", "request body")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header, Name: value")
	return cmd
}
