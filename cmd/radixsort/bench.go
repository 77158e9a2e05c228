package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	cli "github.com/urfave/cli/v2"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/internal/config"
)

func benchCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "Sort generated keys repeatedly and verify every run",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "keys", Usage: "Number of keys per sort"},
			&cli.IntFlag{Name: "runs", Usage: "Number of sorts"},
			&cli.StringFlag{Name: "backend", Usage: "Engine backend: cpu or gpu"},
			&cli.StringFlag{Name: "distribution", Usage: "Key distribution: uniform, few, sorted or reversed"},
			&cli.Uint64Flag{Name: "seed", Usage: "Random seed for generated keys"},
		},
		Action: st.bench,
	}
}

func (st *state) bench(c *cli.Context) error {
	b := st.cfg.Bench
	if c.IsSet("keys") {
		b.Keys = uint32(c.Uint("keys"))
	}
	if c.IsSet("runs") {
		b.Runs = c.Int("runs")
	}
	if c.IsSet("backend") {
		b.Backend = c.String("backend")
	}
	if c.IsSet("distribution") {
		b.Distribution = c.String("distribution")
	}
	if c.IsSet("seed") {
		b.Seed = c.Uint64("seed")
	}
	if b.Runs < 1 {
		return fmt.Errorf("runs must be positive, got %d", b.Runs)
	}

	keys, err := generateKeys(b.Distribution, b.Keys, b.Seed)
	if err != nil {
		return err
	}

	eng, err := radixsort.OpenEngine(b.Backend, st.cfg.Options()...)
	if err != nil {
		return err
	}
	defer eng.Close()

	p := st.printer
	p.Fprintf(st.out, "sorting %d %s keys on %s, %d runs\n", len(keys), b.Distribution, b.Backend, b.Runs)

	var total time.Duration
	var failed, unsorted int
	for run := range b.Runs {
		res, err := eng.Sort(c.Context, keys, nil)
		switch {
		case errors.Is(err, radixsort.ErrSortFailed):
			failed++
			p.Fprintf(st.out, "run %d: %v\n", run, err)
			continue
		case err != nil:
			return err
		}
		if err := radixsort.CheckSortedBits(st.keyBits(), keys, nil, res.Keys, res.Payloads); err != nil {
			unsorted++
			p.Fprintf(st.out, "run %d: %v\n", run, err)
			continue
		}
		total += res.Elapsed
		p.Fprintf(st.out, "run %d: %v (%.1f Mkeys/s)\n", run, res.Elapsed, throughput(len(keys), res.Elapsed))
	}

	ok := b.Runs - failed - unsorted
	if ok > 0 {
		avg := total / time.Duration(ok)
		p.Fprintf(st.out, "average: %v (%.1f Mkeys/s)\n", avg, throughput(len(keys), avg))
	}
	if failed > 0 || unsorted > 0 {
		return fmt.Errorf("%d of %d runs failed, %d unsorted", failed, b.Runs, unsorted)
	}
	return nil
}

func throughput(n int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds() / 1e6
}

// generateKeys returns n keys drawn from the named distribution.
func generateKeys(distribution string, n uint32, seed uint64) ([]uint32, error) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	keys := make([]uint32, n)
	switch distribution {
	case "uniform":
		for i := range keys {
			keys[i] = rng.Uint32()
		}
	case "few":
		for i := range keys {
			keys[i] = rng.Uint32N(16) << 12
		}
	case "sorted":
		for i := range keys {
			keys[i] = uint32(i)
		}
	case "reversed":
		for i := range keys {
			keys[i] = n - uint32(i)
		}
	default:
		return nil, fmt.Errorf("unknown distribution %q: want one of %v", distribution, config.Distributions)
	}
	return keys, nil
}
