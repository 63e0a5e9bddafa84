package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hedeqiang/tether/auth"
)

func (a *app) tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored token",
	}
	cmd.AddCommand(a.tokenSetCmd(), a.tokenShowCmd(), a.tokenClearCmd())
	return cmd
}

func (a *app) tokenSetCmd() *cobra.Command {
	var (
		refresh string
		expires time.Duration
	)
	cmd := &cobra.Command{
		Use:   "set [access-token]",
		Short: "Store a token; reads it from stdin when omitted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			access := ""
			if len(args) == 1 {
				access = args[0]
			} else {
				var err error
				access, err = readSecret(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return err
				}
			}
			if access == "" {
				return errors.New("empty access token")
			}

			t, err := auth.FromJWT(access, refresh)
			if err != nil {
				// opaque tokens carry no expiry
				t = auth.TokenData{AccessToken: access, RefreshToken: refresh}
			}
			if expires > 0 {
				t.ExpiresAt = time.Now().Add(expires).UnixMilli()
			}

			if err := a.client.Auth().Login(t); err != nil {
				return fmt.Errorf("failed to store token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token stored for profile %q.\n", a.cfg.Profile)
			return nil
		},
	}
	cmd.Flags().StringVar(&refresh, "refresh", "", "refresh token")
	cmd.Flags().DurationVar(&expires, "expires", 0, "lifetime of the access token (default: the JWT exp claim)")
	return cmd
}

// readSecret reads one line from in, without echo when in is a terminal.
func readSecret(in io.Reader, prompt io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Access token: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read token: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return strings.TrimSpace(line), nil
}

type tokenView struct {
	Profile      string `json:"profile" yaml:"profile"`
	AccessToken  string `json:"accessToken" yaml:"accessToken"`
	RefreshToken bool   `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	ExpiresAt    string `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
	Expired      bool   `json:"expired" yaml:"expired"`
}

func (a *app) tokenShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the stored token, redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.client.Auth().Current()
			if t == nil {
				return fmt.Errorf("profile %q: %w", a.cfg.Profile, auth.ErrNoToken)
			}
			v := tokenView{
				Profile:      a.cfg.Profile,
				AccessToken:  redact(t.AccessToken),
				RefreshToken: t.RefreshToken != "",
				Expired:      t.ExpiredAt(time.Now(), 0),
			}
			if t.ExpiresAt > 0 {
				v.ExpiresAt = t.Expiry().UTC().Format(time.RFC3339)
			}
			format := a.output
			if format == "raw" {
				format = "yaml"
			}
			return printValue(cmd.OutOrStdout(), format, v)
		},
	}
}

func (a *app) tokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client.Auth().Logout(); err != nil {
				return fmt.Errorf("failed to clear token: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Token cleared for profile %q.\n", a.cfg.Profile)
			return nil
		},
	}
}

// redact keeps the first and last four characters of long tokens.
func redact(tok string) string {
	if len(tok) <= 12 {
		return strings.Repeat("*", len(tok))
	}
	return tok[:4] + "..." + tok[len(tok)-4:]
}
