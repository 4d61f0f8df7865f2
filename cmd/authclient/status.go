package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/spf13/cobra"
)

type statusReport struct {
	LoggedIn        bool      `json:"loggedIn"`
	Sequence        int64     `json:"seq"`
	Scope           string    `json:"scope,omitempty"`
	Expiry          time.Time `json:"accessTokenExpiry,omitzero"`
	Expired         bool      `json:"expired"`
	HasIDToken      bool      `json:"hasIdToken"`
	HasRefreshToken bool      `json:"hasRefreshToken"`
}

func newStatusReport(s credentials.State) statusReport {
	return statusReport{
		LoggedIn:        !s.IsEmpty(),
		Sequence:        s.Sequence,
		Scope:           s.Scope,
		Expiry:          s.AccessTokenExpiry,
		Expired:         !s.IsEmpty() && s.Expired(),
		HasIDToken:      s.IDToken != "",
		HasRefreshToken: s.RefreshToken != "",
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored credentials",
		Long: `Show whether credentials are stored, their scope and expiry. Token values are
never printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report := newStatusReport(c.app.Status())
			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if !report.LoggedIn {
				fmt.Fprintln(c.out, "Not signed in. Run: authclient login")
				return nil
			}
			fmt.Fprintf(c.out, "Issuer:        %s\n", c.app.Config.GetIssuerURL())
			fmt.Fprintf(c.out, "Scope:         %s\n", report.Scope)
			fmt.Fprintf(c.out, "Expires:       %s\n", formatExpiry(report.Expiry))
			fmt.Fprintf(c.out, "Refreshable:   %t\n", report.HasRefreshToken)
			fmt.Fprintf(c.out, "Generation:    %d\n", report.Sequence)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := time.Until(t).Round(time.Second)
	if d <= 0 {
		return fmt.Sprintf("%s (expired)", t.Local().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (in %s)", t.Local().Format(time.RFC3339), d)
}
