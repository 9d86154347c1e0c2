package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bietkhonhungvandi212/array-db/internal/logger"
	"github.com/bietkhonhungvandi212/array-db/internal/storage/buffer"
	"github.com/bietkhonhungvandi212/array-db/internal/storage/file"
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

const envPrefix = "ARRAYDB"

// cli holds what every subcommand shares: the resolved options and the
// output streams.
type cli struct {
	opts   util.Options
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{opts: util.DefaultOptions(), stdin: stdin, stdout: stdout, stderr: stderr}

	rc := &cobra.Command{
		Use:   "arraydb",
		Short: "arraydb stores a flat array of int64 records in fixed-size pages.",
		Long: `arraydb stores a flat array of int64 records in 4096-byte pages and
serves them through a bounded buffer pool.

Every option can be given as a flag, as an ARRAYDB_* environment
variable (dashes become underscores) or in a TOML file passed with
--config, in that order of priority.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setAllConfig(viper.New(), cmd.Flags()); err != nil {
				return err
			}
			return c.opts.Validate()
		},
	}

	flags := rc.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file to read from.")
	flags.StringVarP(&c.opts.Path, "path", "p", c.opts.Path, "Page store location.")
	flags.StringVar(&c.opts.StoreType, "store", c.opts.StoreType, "Page store: file, bolt or memory.")
	flags.IntVar(&c.opts.PageLimit, "page-limit", c.opts.PageLimit, "Buffer pool capacity in pages.")
	flags.StringVar(&c.opts.Policy, "policy", c.opts.Policy, "Eviction policy: lru or clock.")
	flags.IntVar(&c.opts.InitialPages, "initial-pages", c.opts.InitialPages, "Pages reserved when a file store is created.")
	flags.BoolVar(&c.opts.SyncWrites, "sync-writes", c.opts.SyncWrites, "Sync the store after every page write.")
	flags.StringVar(&c.opts.LogLevel, "log-level", c.opts.LogLevel, "Log level: error, warn, info or debug.")

	rc.AddCommand(newDemoCommand(c))
	rc.AddCommand(newBenchCommand(c))
	rc.AddCommand(newGetCommand(c))
	rc.AddCommand(newPutCommand(c))
	rc.AddCommand(newConfigCommand(c))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	rc.SetIn(stdin)
	return rc
}

// setAllConfig takes a FlagSet to be the definition of all configuration
// options, as well as their defaults. It then reads from the command line, the
// environment, and a config file (if specified), and applies the configuration
// in that priority order.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	validTags := make(map[string]bool)
	flags.VisitAll(func(f *pflag.Flag) {
		validTags[f.Name] = true
	})

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}
		for _, key := range v.AllKeys() {
			if !validTags[key] {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		// a flag set on the command line already holds the winning value
		if flagErr != nil || f.Changed {
			return
		}
		flagErr = f.Value.Set(v.GetString(f.Name))
	})
	return flagErr
}

func (c *cli) logger() (logger.Logger, error) {
	level, err := logger.ParseLevel(c.opts.LogLevel)
	if err != nil {
		return nil, err
	}
	return logger.NewStandardLogger(c.stderr, level).WithPrefix("arraydb: "), nil
}

// openPool builds the store and pool described by opts. The returned
// registry holds the pool's metrics.
func (c *cli) openPool(opts util.Options) (*buffer.BufferPool, *prometheus.Registry, error) {
	// subcommands may override fields after PersistentPreRunE validated them
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := c.logger()
	if err != nil {
		return nil, nil, err
	}
	replacer, err := buffer.NewReplacer(opts.Policy, opts.PageLimit)
	if err != nil {
		return nil, nil, err
	}
	store, err := file.Open(opts)
	if err != nil {
		return nil, nil, err
	}

	reg := prometheus.NewRegistry()
	bp := buffer.NewBufferPool(store,
		buffer.WithCapacity(opts.PageLimit),
		buffer.WithReplacer(replacer),
		buffer.WithLogger(log),
		buffer.WithMetrics(buffer.NewMetrics(reg)),
	)
	log.Debugf("opened %s store %q: pages=%d capacity=%d policy=%s",
		opts.StoreType, opts.Path, bp.NumPages(), opts.PageLimit, opts.Policy)
	return bp, reg, nil
}
