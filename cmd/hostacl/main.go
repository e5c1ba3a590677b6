package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hostacl/hostacl/slogc"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	LogLevel  string `toml:"log-level"`
	LogFormat string `toml:"log-format"`

	Access AccessConfig `toml:"access"`
	Serve  ServeConfig  `toml:"serve"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hostacl",
		Short:         "hostacl decides host based access from allow/deny rules",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.AddCommand(checkCmd())
	cmd.AddCommand(decideCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(auditCmd())

	return cmd
}

// configFlags registers the flags shared by every command that reads configuration.
// Commands may bind more flags into the returned config, the returned function loads the
// config files and merges all flags over them.
func configFlags(cmd *cobra.Command) (*Config, func() (Config, error)) {
	cmd.Flags().SortFlags = false

	filenames := cmd.Flags().StringArray("config", nil, "config file to load, can be passed multiple times")

	var flagsConfig Config
	cmd.Flags().StringVar(&flagsConfig.LogLevel, "log-level", "", "log level to use")
	cmd.Flags().StringVar(&flagsConfig.LogFormat, "log-format", "", "log formatter to use")

	cmd.Flags().StringVar(&flagsConfig.Access.Order, "order", "", "how allow and deny rules combine (allowlist|deny,allow|allow,deny|explicit)")
	cmd.Flags().StringVar(&flagsConfig.Access.ServerAddr, "server-addr", "", "server address for the localnet shortcuts")
	cmd.Flags().StringArrayVar(&flagsConfig.Access.Rules, "rule", nil, "rule to add, like 'allow % from 10.0.0.0/8', can be passed multiple times")
	cmd.Flags().StringVar(&flagsConfig.Access.RulesFile, "rules-file", "", "rules file to load, text or yaml")

	return &flagsConfig, func() (Config, error) {
		cfg, err := loadConfigs(*filenames)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg.merge(flagsConfig)
		return cfg, nil
	}
}

func loadConfigs(files []string) (Config, error) {
	var merged Config
	for _, f := range files {
		cfg, err := loadConfig(f)
		if err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", f, err)
		}
		merged.merge(cfg)
	}
	return merged, nil
}

func loadConfig(file string) (Config, error) {
	var cfg Config
	f, err := os.Open(file)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec = dec.DisallowUnknownFields()
	err = dec.Decode(&cfg)
	var serr *toml.StrictMissingError
	if errors.As(err, &serr) {
		return cfg, errors.New(serr.String())
	}
	return cfg, err
}

func logger(cfg Config) (*slog.Logger, error) {
	return slogc.New(cfg.LogLevel, cfg.LogFormat)
}

func wrapErr(ctx string, runErr func(*cobra.Command, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := runErr(cmd, args); err != nil {
			return fmt.Errorf("%s: %w", ctx, err)
		}
		return nil
	}
}

func (c *Config) merge(o Config) {
	c.LogLevel = override(c.LogLevel, o.LogLevel)
	c.LogFormat = override(c.LogFormat, o.LogFormat)

	c.Access.merge(o.Access)
	c.Serve.merge(o.Serve)
}

func override(s, o string) string {
	if o != "" {
		return o
	}
	return s
}

func overrides[K comparable, V any](s, o map[K]V) map[K]V {
	if len(o) == 0 {
		return s
	}
	if s == nil {
		s = map[K]V{}
	}
	for k, v := range o {
		s[k] = v
	}
	return s
}
