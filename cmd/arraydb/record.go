package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newGetCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get INDEX",
		Short: "Print the record at INDEX.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse index: %w", err)
			}

			bp, _, err := c.openPool(c.opts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, bp.Close()) }()

			v, err := bp.ReadRecord(index)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, v)
			return nil
		},
	}
}

// put grows the store with zeroed pages when INDEX lies past its end.
func newPutCommand(c *cli) *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put [flags] INDEX VALUE",
		Short: "Store VALUE at record INDEX.",
		Long: `put stores VALUE at record INDEX. Flags must come before INDEX so a
negative VALUE such as -42 is not read as a flag.
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			index, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse index: %w", err)
			}
			value, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("parse value: %w", err)
			}

			bp, _, err := c.openPool(c.opts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, bp.Close()) }()

			if err := ensureRecords(bp, index+1); err != nil {
				return err
			}
			return bp.WriteRecord(index, value)
		},
	}
	putCmd.Flags().SetInterspersed(false)
	return putCmd
}
