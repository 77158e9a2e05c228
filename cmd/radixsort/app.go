package main

import (
	"io"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/radixsort"
	"github.com/gogpu/radixsort/internal/config"
)

// Global flags shared by all commands.
var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a TOML configuration file; flags override its values",
	}
	logLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn or error",
	}
	workersFlag = &cli.IntFlag{
		Name:  "workers",
		Usage: "Number of CPU workers executing workgroups (0 = GOMAXPROCS)",
	}
	spinBudgetFlag = &cli.UintFlag{
		Name:  "spin-budget",
		Usage: "Look-back polls before a scatter workgroup gives up",
	}
	keyBitsFlag = &cli.UintFlag{
		Name:  "key-bits",
		Usage: "Key bits to sort: 16 or 32",
	}
)

// state is shared by the commands of one run.
type state struct {
	out     io.Writer
	printer *message.Printer
	cfg     *config.Config
}

func newApp(out io.Writer) *cli.App {
	st := &state{
		out:     out,
		printer: message.NewPrinter(language.English),
	}
	return &cli.App{
		Name:      "radixsort",
		Usage:     "Benchmark and inspect the device-wide radix sort",
		Writer:    out,
		ErrWriter: os.Stderr,
		Flags: []cli.Flag{
			configFlag,
			logLevelFlag,
			workersFlag,
			spinBudgetFlag,
			keyBitsFlag,
		},
		Before: st.setup,
		Commands: []*cli.Command{
			benchCommand(st),
			histogramCommand(st),
			shaderCommand(st),
		},
	}
}

// setup loads the configuration, applies flag overrides and installs the
// logger.
func (st *state) setup(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String(configFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if c.IsSet(logLevelFlag.Name) {
		cfg.Log.Level = c.String(logLevelFlag.Name)
	}
	if c.IsSet(workersFlag.Name) {
		cfg.Sort.Workers = c.Int(workersFlag.Name)
	}
	if c.IsSet(spinBudgetFlag.Name) {
		cfg.Sort.SpinBudget = uint32(c.Uint(spinBudgetFlag.Name))
	}
	if c.IsSet(keyBitsFlag.Name) {
		cfg.Sort.KeyBits = uint32(c.Uint(keyBitsFlag.Name))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	radixsort.SetLogger(logger)
	setGPULogger(logger)

	st.cfg = cfg
	return nil
}

// keyBits returns the configured key width.
func (st *state) keyBits() uint32 {
	if st.cfg.Sort.KeyBits == 0 {
		return 32
	}
	return st.cfg.Sort.KeyBits
}
