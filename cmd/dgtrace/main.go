// Copyright (C) 2024 The dg-transform Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// dgtrace instruments and runs YAML program descriptions: the whole
// pipeline of assigning canonical identifiers, rewriting the program, and
// executing it against the tracing runtime, in one process.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/chrisliu/dg-transform/canon"
	"github.com/chrisliu/dg-transform/core/log"
	"github.com/chrisliu/dg-transform/ir"
	"github.com/chrisliu/dg-transform/ir/interp"
	"github.com/chrisliu/dg-transform/trace"
	"github.com/chrisliu/dg-transform/trace/tracer"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

//go:embed loop.yaml
var exampleProgram string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("dgtrace: %v", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	verbose := false
	root := &cobra.Command{
		Use:           "dgtrace",
		Short:         "Instrument and run program descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show debug messages")

	newCtx := func() context.Context {
		ctx := context.Background()
		if !verbose {
			ctx = log.PutSeverity(ctx, log.Info)
		}
		return ctx
	}

	root.AddCommand(
		newIdsCmd(newCtx),
		newSimPointCmd(newCtx),
		newInstTraceCmd(newCtx),
		newExampleCmd(),
	)
	return root
}

func newIdsCmd(newCtx func() context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "ids <program.yaml>",
		Short: "Print the canonical identifier assignment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadProgramFile(args[0])
			if err != nil {
				return err
			}
			for _, rec := range canon.New(m).Records() {
				fmt.Fprintf(cmd.OutOrStdout(), "%4d %s::%s first inst %d\n",
					rec.BBID, rec.FunctionName, rec.BBName, rec.FirstInstID)
			}
			return nil
		},
	}
}

func newSimPointCmd(newCtx func() context.Context) *cobra.Command {
	uidFile := ""
	entry := ""
	cmd := &cobra.Command{
		Use:   "simpoint <program.yaml>",
		Short: "Instrument for SimPoint profiling and run",
		Long: "Instruments the program for basic-block frequency profiling, " +
			"writes the canonical identifier sidecar, and runs the result under " +
			"a SimPoint context configured from the environment " +
			"(DG_BB_INTERVAL_SIZE, DG_BB_INTERVAL_PATH).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := newCtx()
			m, err := loadProgramFile(args[0])
			if err != nil {
				return err
			}
			if err := trace.Run(ctx, m, &trace.SimPointPass{UIDFile: uidFile}); err != nil {
				return err
			}
			c, err := tracer.NewSimPoint(ctx, tracer.Config{})
			if err != nil {
				return err
			}
			return run(ctx, m, c, entry)
		},
	}
	cmd.Flags().StringVar(&uidFile, "uid-file", "", "canonical identifier sidecar path")
	cmd.Flags().StringVar(&entry, "entry", "main", "entry function")
	return cmd
}

func newInstTraceCmd(newCtx func() context.Context) *cobra.Command {
	uidFile := ""
	entry := ""
	cmd := &cobra.Command{
		Use:   "insttrace <program.yaml>",
		Short: "Instrument for instruction tracing and run",
		Long: "Instruments the program for instruction tracing using the " +
			"canonical identifier sidecar of a previous simpoint run, and runs " +
			"the result under an InstTrace context configured from the " +
			"environment (DG_TRACE_PATH and one of DG_INST_START/DG_INST_MAX, " +
			"DG_SIMPOINT_PATH).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := newCtx()
			m, err := loadProgramFile(args[0])
			if err != nil {
				return err
			}
			if err := trace.Run(ctx, m, trace.InstTracePipeline(uidFile)...); err != nil {
				return err
			}
			c, err := tracer.NewInstTrace(ctx, tracer.Config{})
			if err != nil {
				return err
			}
			return run(ctx, m, c, entry)
		},
	}
	cmd.Flags().StringVar(&uidFile, "uid-file", "", "canonical identifier sidecar path")
	cmd.Flags().StringVar(&entry, "entry", "main", "entry function")
	return cmd
}

func newExampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Print an example program description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), exampleProgram)
			return nil
		},
	}
}

func run(ctx context.Context, m *ir.Module, c tracer.Context, entry string) error {
	in := interp.New(m)
	in.Externs = tracer.Externs(c)
	ret, err := in.Run(ctx, entry)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, color.GreenString("%s returned %d", entry, ret))
	return nil
}
