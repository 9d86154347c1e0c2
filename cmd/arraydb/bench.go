package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bietkhonhungvandi212/array-db/internal/storage/buffer"
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

type benchConfig struct {
	Workers int
	Ops     int
	Records uint64
	Writes  float64
}

func newBenchCommand(c *cli) *cobra.Command {
	bc := benchConfig{}
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent record workload through the buffer pool.",
		Long: `
Runs --workers goroutines that each perform --ops random record reads and
writes over the first --records records, then prints pool statistics.
`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if bc.Workers <= 0 || bc.Ops <= 0 || bc.Records == 0 {
				return fmt.Errorf("workers, ops and records must be positive")
			}
			bp, reg, err := c.openPool(c.opts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, bp.Close()) }()

			if err := ensureRecords(bp, bc.Records); err != nil {
				return err
			}

			start := time.Now()
			if err := runBench(cmd.Context(), bp, bc); err != nil {
				return err
			}
			elapsed := time.Since(start)

			total := bc.Workers * bc.Ops
			fmt.Fprintf(c.stdout, "%d ops in %v (%.0f ops/s)\n", total, elapsed, float64(total)/elapsed.Seconds())
			printStats(c, bp.Stats())

			families, err := reg.Gather()
			if err != nil {
				return err
			}
			sort.Slice(families, func(i, j int) bool { return families[i].GetName() < families[j].GetName() })
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					v := m.GetCounter().GetValue()
					if m.Gauge != nil {
						v = m.GetGauge().GetValue()
					}
					fmt.Fprintf(c.stdout, "%s %g\n", mf.GetName(), v)
				}
			}
			return nil
		},
	}
	flags := benchCmd.Flags()
	flags.IntVarP(&bc.Workers, "workers", "w", 4, "Concurrent workers.")
	flags.IntVarP(&bc.Ops, "ops", "n", 10000, "Operations per worker.")
	flags.Uint64VarP(&bc.Records, "records", "r", 64*util.SlotsPerPage, "Records the workload spans.")
	flags.Float64Var(&bc.Writes, "writes", 0.2, "Fraction of operations that write.")
	return benchCmd
}

func runBench(ctx context.Context, bp *buffer.BufferPool, bc benchConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)
	for w := range bc.Workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(w), uint64(time.Now().UnixNano())))
			for range bc.Ops {
				if err := ctx.Err(); err != nil {
					return err
				}
				i := rng.Uint64N(bc.Records)
				if rng.Float64() < bc.Writes {
					if err := bp.WriteRecord(i, rng.Int64()); err != nil {
						return err
					}
					continue
				}
				if _, err := bp.ReadRecord(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// ensureRecords allocates zeroed pages until records n-1 is addressable.
func ensureRecords(bp *buffer.BufferPool, n uint64) error {
	need := (n + util.SlotsPerPage - 1) / util.SlotsPerPage
	for bp.NumPages() < need {
		h, err := bp.NewPage()
		if err != nil {
			return err
		}
		if err := h.Unpin(true); err != nil {
			return err
		}
	}
	return nil
}

func printStats(c *cli, s buffer.Stats) {
	fmt.Fprintf(c.stdout, "capacity=%d resident=%d pinned=%d dirty=%d\n", s.Capacity, s.Resident, s.Pinned, s.Dirty)
	fmt.Fprintf(c.stdout, "hits=%d misses=%d evictions=%d flushes=%d\n", s.Hits, s.Misses, s.Evictions, s.Flushes)
}
