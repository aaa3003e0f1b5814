package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/deepnoodle-ai/npp/asm"
	"github.com/deepnoodle-ai/npp/dis"
	"github.com/deepnoodle-ai/npp/errz"
	"github.com/deepnoodle-ai/npp/heap"
	"github.com/deepnoodle-ai/npp/memory"
)

func newDisCmd(a *app) *cobra.Command {
	var stats bool
	cmd := &cobra.Command{
		Use:   "dis FILE.npp",
		Short: "Assemble a file and print its bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.disassemble(cmd, args[0], stats)
		},
	}
	cmd.Flags().BoolVar(&stats, "stats", false, "print instruction and constant counts for the script")
	return cmd
}

func (a *app) disassemble(cmd *cobra.Command, path string, stats bool) error {
	source, err := readScript(path)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	allocator := memory.New(memory.WithStress(cfg.GC.Stress))
	h := heap.New(heap.WithAllocator(allocator))
	defer h.Free()

	assembler := asm.New(asm.WithFilename(filepath.Base(path)), asm.WithLogger(a.logger(cfg)))
	fn, err := assembler.Compile(h, source)
	if err != nil {
		fmt.Fprint(a.stderr, errz.NewFormatter(a.useColor()).Format(err))
		return &exitError{code: exitDataErr, err: err, reported: true}
	}
	if err := dis.PrintFunction(a.stdout, h, fn); err != nil {
		return &exitError{code: exitSoftware, err: err}
	}
	if stats {
		s := heap.MustAs[*heap.Function](h, fn).Chunk.Stats()
		fmt.Fprintf(a.stdout, "\ninstructions: %d\nwords: %d\nconstants: %d\n",
			s.InstructionCount, s.WordCount, s.ConstantCount)
	}
	return nil
}
