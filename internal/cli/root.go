// Package cli implements ligactl, a terminal client for the league server.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/thereayou/ligabpi/internal/league"
	"github.com/thereayou/ligabpi/pkg/client"
)

const defaultServer = "http://localhost:8080"

// app carries the resolved settings into every command.
type app struct {
	v       *viper.Viper
	cfgFile string
	verbose bool
}

// New returns the `ligactl` root command.
func New() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "ligactl",
		Short:         "Follow the league chat, predictions and tables from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $HOME/.ligactl.yaml)")
	flags.String("server", defaultServer, "server base URL")
	flags.String("token", "", "bearer token (normally saved by login)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log API calls to stderr")
	_ = a.v.BindPFlag("server", flags.Lookup("server"))
	_ = a.v.BindPFlag("token", flags.Lookup("token"))

	root.AddCommand(
		a.registerCmd(),
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.chatCmd(),
		a.matchesCmd(),
		a.predictCmd(),
		a.predictionsCmd(),
		a.newsCmd(),
		a.standingsCmd(),
		a.clubsCmd(),
		a.playersCmd(),
		a.scorersCmd(),
		a.profileCmd(),
	)
	return root
}

func (a *app) load() error {
	a.v.SetEnvPrefix("LIGA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(home)
		a.v.SetConfigName(".ligactl")
		a.v.SetConfigType("yaml")
	}

	err := a.v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// saveToken persists the session so later commands reuse it.
func (a *app) saveToken(token string) error {
	a.v.Set("token", token)
	path := a.v.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		path = filepath.Join(home, ".ligactl.yaml")
	}
	if err := a.v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("save session to %s: %w", path, err)
	}
	return nil
}

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

func (a *app) client(cmd *cobra.Command) *client.Client {
	return client.New(a.v.GetString("server"),
		client.WithToken(a.v.GetString("token")),
		client.WithLogger(a.logger(cmd)),
	)
}

// signedIn resolves the current user or fails with a hint to log in.
func (a *app) signedIn(cmd *cobra.Command, c *client.Client) (league.User, error) {
	user, err := c.CurrentUser(cmd.Context())
	if err != nil {
		return league.User{}, err
	}
	if user == nil {
		return league.User{}, errors.New("not signed in, run `ligactl login` first")
	}
	return *user, nil
}
