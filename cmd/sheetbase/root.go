package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sheetbase/sheetbase/internal/config"
	"github.com/sheetbase/sheetbase/pkg/sheetbase"
	"github.com/sheetbase/sheetbase/pkg/transport"
	"github.com/sheetbase/sheetbase/pkg/transport/grpctransport"
	"github.com/sheetbase/sheetbase/pkg/transport/httptransport"
	"github.com/sheetbase/sheetbase/pkg/types"
)

// clientKeys are the settings a flag or environment variable may override
// on top of the config file.
var clientKeys = []struct {
	key, env, usage string
}{
	{"transport", "SHEETBASE_TRANSPORT", "transport to the store server: http or grpc"},
	{"endpoint", "SHEETBASE_ENDPOINT", "server base URL (http) or address (grpc)"},
	{"store", "SHEETBASE_STORE", "store id"},
	{"token", "SHEETBASE_TOKEN", "write token"},
	{"api-key", "SHEETBASE_API_KEY", "read-only API key"},
	{"schema", "SHEETBASE_SCHEMA", "table definition file (YAML or JSON)"},
}

// cli carries the state shared by every command of one invocation.
type cli struct {
	v      *viper.Viper
	cfg    *config.Config
	closer func() error
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:           "sheetbase",
		Short:         "Manage sheetbase stores",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !c.v.GetBool("verbose") {
				log.SetOutput(io.Discard)
			}
			return c.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.closer != nil {
				return c.closer()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (YAML or JSON)")
	for _, k := range clientKeys {
		flags.String(k.key, "", k.usage)
		c.v.BindPFlag(k.key, flags.Lookup(k.key))
		c.v.BindEnv(k.key, k.env)
	}
	flags.Duration("timeout", 0, "timeout for the whole command")
	flags.BoolP("verbose", "v", false, "log progress to stderr")
	c.v.BindPFlag("config", flags.Lookup("config"))
	c.v.BindEnv("config", "SHEETBASE_CONFIG")
	c.v.BindPFlag("timeout", flags.Lookup("timeout"))
	c.v.BindPFlag("verbose", flags.Lookup("verbose"))

	root.AddCommand(
		newTablesCmd(c),
		newDumpCmd(c),
		newCreateStoreCmd(c),
		newEnsureCmd(c),
		newSeedCmd(c),
		newMigrateCmd(c),
	)
	return root
}

// load layers defaults, the config file, then environment and flags.
func (c *cli) load() error {
	cfg := config.DefaultConfig()
	if path := c.v.GetString("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	overlay := map[string]*string{
		"transport": &cfg.Client.Transport,
		"endpoint":  &cfg.Client.Endpoint,
		"store":     &cfg.Client.Store,
		"token":     &cfg.Client.Token,
		"api-key":   &cfg.Client.APIKey,
		"schema":    &cfg.Client.Schema,
	}
	for key, dst := range overlay {
		if c.v.IsSet(key) {
			*dst = c.v.GetString(key)
		}
	}
	if c.v.IsSet("timeout") {
		cfg.Client.Timeout = c.v.GetDuration("timeout")
	}

	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	c.cfg = cfg
	return nil
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if c.cfg.Client.Timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.Client.Timeout)
	}
	return context.WithCancel(ctx)
}

// transport opens the configured transport once per invocation.
func (c *cli) transport() (transport.Transport, error) {
	switch c.cfg.Client.Transport {
	case config.TransportGRPC:
		client, err := grpctransport.Dial(c.cfg.Client.Endpoint)
		if err != nil {
			return nil, err
		}
		c.closer = client.Close
		return client, nil
	default:
		endpoint := c.cfg.Client.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "http://" + endpoint
		}
		return httptransport.New(endpoint, httptransport.WithUserAgent("sheetbase-cli/"+version)), nil
	}
}

func (c *cli) tables() ([]types.Table, error) {
	if c.cfg.Client.Schema == "" {
		return nil, fmt.Errorf("a schema file is required (--schema or client.schema)")
	}
	return types.LoadSchemaFile(c.cfg.Client.Schema)
}

// connect opens a connection with the configured store, credentials and
// schema.
func (c *cli) connect() (*sheetbase.Connection, error) {
	if c.cfg.Client.Store == "" {
		return nil, fmt.Errorf("a store id is required (--store or client.store)")
	}
	tables, err := c.tables()
	if err != nil {
		return nil, err
	}
	tr, err := c.transport()
	if err != nil {
		return nil, err
	}
	return sheetbase.Open(sheetbase.Options{
		Store:     c.cfg.Client.Store,
		Token:     c.cfg.Client.Token,
		APIKey:    c.cfg.Client.APIKey,
		Tables:    tables,
		Transport: tr,
	})
}

func since(start time.Time) string {
	return time.Since(start).Round(time.Millisecond).String()
}
