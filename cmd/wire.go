package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ideasync/internal/client"
	"ideasync/internal/config"
	"ideasync/internal/projector"
)

const (
	flagConfig    = "config"
	flagUser      = "user"
	flagName      = "name"
	flagRelay     = "relay"
	flagDirectory = "directory"
	flagTimeout   = "connect-timeout"
)

var errUserRequired = errors.New("a user id is required (--user or IDEASYNC_USER)")

// settings is everything a command needs to build a client.
type settings struct {
	client         config.ClientConfig
	identity       projector.Identity
	connectTimeout time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("IDEASYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(flagTimeout, 10*time.Second)
	return v
}

func bindPersistentFlags(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.PersistentFlags()
	flags.String(flagConfig, "", "path to a JSON config file")
	flags.String(flagUser, "", "user id to act as (env IDEASYNC_USER)")
	flags.String(flagName, "", "display name (defaults to the user id)")
	flags.String(flagRelay, "", "relay websocket url")
	flags.String(flagDirectory, "", "relay directory base url")
	flags.Duration(flagTimeout, 10*time.Second, "how long to wait for the relay connection")
	for _, name := range []string{flagConfig, flagUser, flagName, flagRelay, flagDirectory, flagTimeout} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
}

func loadSettings(v *viper.Viper) (*settings, error) {
	cfg := config.Default()
	if path := v.GetString(flagConfig); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if relay := v.GetString(flagRelay); relay != "" {
		cfg.Client.RelayURL = relay
	}
	if dir := v.GetString(flagDirectory); dir != "" {
		cfg.Client.DirectoryURL = dir
	}

	userID := v.GetString(flagUser)
	name := v.GetString(flagName)
	if name == "" {
		name = userID
	}
	return &settings{
		client:         cfg.Client,
		identity:       projector.Identity{UserID: userID, Username: name},
		connectTimeout: v.GetDuration(flagTimeout),
	}, nil
}

// connect builds a client and waits for the relay connection.
func connect(ctx context.Context, s *settings) (*client.Client, error) {
	if s.identity.UserID == "" {
		return nil, errUserRequired
	}
	c := client.New(ctx, s.client, s.identity)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()
	if err := c.WaitConnected(waitCtx); err != nil {
		c.Disconnect()
		return nil, fmt.Errorf("connect to %s: %w", s.client.RelayURL, err)
	}
	return c, nil
}
