package main

import (
	"encoding/binary"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"

	"github.com/gogpu/radixsort"
)

func shaderCommand(st *state) *cli.Command {
	return &cli.Command{
		Name:  "shader",
		Usage: "Write the radix sort compute shader as SPIR-V or WGSL",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Usage: "Output file", Required: true},
			&cli.BoolFlag{Name: "wgsl", Usage: "Write WGSL source instead of SPIR-V"},
		},
		Action: st.shader,
	}
}

func (st *state) shader(c *cli.Context) error {
	cfg, err := radixsort.NewConfig(st.cfg.Options()...)
	if err != nil {
		return err
	}

	var data []byte
	if c.Bool("wgsl") {
		src, err := shaderSource(cfg)
		if err != nil {
			return err
		}
		data = []byte(src)
	} else {
		words, err := compileSPIRV(cfg)
		if err != nil {
			return err
		}
		data = make([]byte, len(words)*4)
		for i, w := range words {
			binary.LittleEndian.PutUint32(data[i*4:], w)
		}
	}

	out := c.String("out")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write shader: %w", err)
	}
	st.printer.Fprintf(st.out, "wrote %d bytes to %s\n", len(data), out)
	return nil
}
