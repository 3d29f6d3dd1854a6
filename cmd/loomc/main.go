// Command loomc is the ahead-of-time compiler's entry point: `compile` lowers
// source text to a linux/amd64 ELF executable, `dump` stops at a named
// pipeline stage and prints its intermediate IR. Grounded on the teacher's
// own std/compiler/main.go (flag surface: -o output, -T target), translated
// into cobra subcommands per SPEC_FULL.md's AMBIENT STACK.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/loomlang/loomc/internal/compiler"
)

var (
	outputPath string
	target     string
	stageName  string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:   "loomc",
		Short: "ahead-of-time compiler for the loom expression language",
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log one structured entry per pipeline stage")

	compileCmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "compile source text to a linux/amd64 ELF executable",
		Args:  cobra.ExactArgs(1),
		RunE:  runCompile,
	}
	compileCmd.Flags().StringVarP(&outputPath, "output", "o", "a.out", "output executable path")
	compileCmd.Flags().StringVarP(&target, "target", "T", "linux/amd64", "target triple (only linux/amd64 is implemented)")

	dumpCmd := &cobra.Command{
		Use:   "dump <file>",
		Short: "compile up to a named pipeline stage and print its IR",
		Args:  cobra.ExactArgs(1),
		RunE:  runDump,
	}
	dumpCmd.Flags().StringVar(&stageName, "stage", "select", fmt.Sprintf("pipeline stage to stop at (one of: %s)", strings.Join(compiler.Stages, ", ")))

	root.AddCommand(compileCmd, dumpCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readSource(path string) (string, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	return string(bs), nil
}

func runCompile(cmd *cobra.Command, args []string) error {
	if target != "" && target != "linux/amd64" {
		return errors.Errorf("unsupported target %q: only linux/amd64 is implemented", target)
	}
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	result, err := compiler.Compile(src, compiler.Options{Verbose: verbose})
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputPath, result.ELF, 0o755); err != nil {
		return errors.Wrapf(err, "writing %s", outputPath)
	}
	return nil
}

func runDump(cmd *cobra.Command, args []string) error {
	src, err := readSource(args[0])
	if err != nil {
		return err
	}
	result, err := compiler.Compile(src, compiler.Options{Verbose: verbose, Stage: stageName})
	if err != nil {
		return err
	}
	fmt.Print(result.Dump)
	return nil
}
