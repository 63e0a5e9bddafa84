package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hedeqiang/tether"
)

// ClientFactory builds the client used by every command.
type ClientFactory func(cfg tether.Config) (*tether.Client, error)

var clientFactory ClientFactory = func(cfg tether.Config) (*tether.Client, error) {
	return tether.New(cfg)
}

// SetClientFactory allows tests to inject a client.
func SetClientFactory(f ClientFactory) {
	clientFactory = f
}

// app holds the flags and the state set during PersistentPreRunE.
type app struct {
	cfgFile  string
	baseURL  string
	profile  string
	logLevel string
	output   string

	cfg    tether.Config
	client *tether.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "tetherctl",
		Short:         "Talk to a node's REST and WebSocket APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.client == nil {
				return nil
			}
			return a.client.Close(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ~/.tether/config.yaml)")
	flags.StringVar(&a.baseURL, "base-url", "", "node base URL")
	flags.StringVar(&a.profile, "profile", "", "token profile")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVarP(&a.output, "output", "o", "json", "output format: json, yaml, raw")

	root.AddCommand(
		a.getCmd(),
		a.headCmd(),
		a.requestCmd(),
		a.tokenCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) setup() error {
	path := a.cfgFile
	if path == "" {
		path = defaultPath("config.yaml")
	}
	cfg, err := tether.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.profile != "" {
		cfg.Profile = a.profile
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = defaultPath("tokens.json")
	}
	a.cfg = cfg

	client, err := clientFactory(cfg)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

// defaultPath returns name under ~/.tether, or name itself when the home
// directory is unknown.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".tether", name)
}
