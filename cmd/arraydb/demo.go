package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bietkhonhungvandi212/array-db/internal/storage/buffer"
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

func newDemoCommand(c *cli) *cobra.Command {
	capacity := 4
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk through page creation, eviction and pool exhaustion.",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			opts := c.opts
			opts.PageLimit = capacity
			bp, _, err := c.openPool(opts)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, bp.Close()) }()
			return runDemo(c, bp)
		},
	}
	demoCmd.Flags().IntVar(&capacity, "capacity", capacity, "Pool capacity used by the demo.")
	return demoCmd
}

func runDemo(c *cli, bp *buffer.BufferPool) error {
	out := c.stdout
	capacity := bp.Capacity()

	for range capacity {
		h, err := bp.NewPage()
		if err != nil {
			return err
		}
		var vals [util.SlotsPerPage]int64
		for i := range vals {
			vals[i] = int64(h.ID())*util.SlotsPerPage + int64(i)
		}
		if err := h.Fill(vals); err != nil {
			return err
		}
		fmt.Fprintf(out, "created page %d\n", h.ID())
		if err := h.Unpin(true); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "size=%d capacity=%d full=%v\n", bp.Size(), capacity, bp.Full())

	before := bp.ResidentPages()
	h, err := bp.NewPage()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "created page %d, evicted %v\n", h.ID(), missing(before, bp.ResidentPages()))
	if err := h.Unpin(false); err != nil {
		return err
	}

	// pin everything, then ask for the evicted page
	var handles []*buffer.PageHandle
	defer func() {
		for _, h := range handles {
			_ = h.Unpin(false)
		}
	}()
	for _, id := range bp.ResidentPages() {
		h, err := bp.FetchPage(id)
		if err != nil {
			return err
		}
		handles = append(handles, h)
	}
	_, err = bp.FetchPage(before[0])
	fmt.Fprintf(out, "fetch page %d with every frame pinned: %v (%s)\n", before[0], err, util.KindOf(err))
	for _, h := range handles {
		if err := h.Unpin(false); err != nil {
			return err
		}
	}
	handles = nil

	v, err := bp.ReadRecord(uint64(before[0]) * util.SlotsPerPage)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "record %d read back after eviction: %d\n", uint64(before[0])*util.SlotsPerPage, v)
	printStats(c, bp.Stats())
	return nil
}

// missing returns the ids in a that are not in b.
func missing(a, b []util.PageID) []util.PageID {
	in := make(map[util.PageID]bool, len(b))
	for _, id := range b {
		in[id] = true
	}
	var out []util.PageID
	for _, id := range a {
		if !in[id] {
			out = append(out, id)
		}
	}
	return out
}
