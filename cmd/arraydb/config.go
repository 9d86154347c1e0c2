package main

import (
	"github.com/pelletier/go-toml"
	"github.com/spf13/cobra"
)

func newConfigCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration.",
		Long: `config prints the configuration after flags, environment and the
config file have been applied, as TOML suitable for --config.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			buf, err := toml.Marshal(c.opts)
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(buf)
			return err
		},
	}
}
