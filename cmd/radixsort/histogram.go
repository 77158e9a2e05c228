package main

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/internal/report"
)

func histogramCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "histogram",
		Usage: "Render the per-pass digit histogram of generated keys as HTML",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "keys", Usage: "Number of keys", Value: 100000},
			&cli.StringFlag{Name: "distribution", Usage: "Key distribution: uniform, few, sorted or reversed"},
			&cli.Uint64Flag{Name: "seed", Usage: "Random seed for generated keys"},
			&cli.StringFlag{Name: "out", Usage: "Output HTML file", Value: "histogram.html"},
		},
		Action: st.histogram,
	}
}

func (st *state) histogram(c *cli.Context) error {
	distribution := st.cfg.Bench.Distribution
	if c.IsSet("distribution") {
		distribution = c.String("distribution")
	}
	seed := st.cfg.Bench.Seed
	if c.IsSet("seed") {
		seed = c.Uint64("seed")
	}
	keys, err := generateKeys(distribution, uint32(c.Uint("keys")), seed)
	if err != nil {
		return err
	}

	s, err := radixsort.NewSorter(st.cfg.Options()...)
	if err != nil {
		return err
	}
	defer s.Close()

	if _, err := s.Sort(c.Context, keys, nil); err != nil {
		return err
	}
	rows := s.Histograms()
	if rows == nil {
		return fmt.Errorf("no histogram recorded")
	}

	out := c.String("out")
	if err := report.WriteHistogram(out, rows); err != nil {
		return err
	}
	st.printer.Fprintf(st.out, "histogram of %d keys (%d passes) saved to %s\n", len(keys), len(rows), out)
	return nil
}
