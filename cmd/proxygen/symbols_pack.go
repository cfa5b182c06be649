package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"proxygen/internal/symbols"
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols",
	Short: "Work with client symbol modules",
}

var symbolsPackCmd = &cobra.Command{
	Use:   "pack [flags] <description.yaml|description.json>",
	Short: "Encode a module description into a symbol module",
	Long: `Pack encodes a YAML or JSON module description into the multi-stream symbol
format read by generate and index. Useful for fixtures and for clients built without a compiler`,
	Args: cobra.ExactArgs(1),
	RunE: runSymbolsPack,
}

func init() {
	symbolsPackCmd.Flags().StringP("output", "o", "", "output path (default: description name with .psym)")
	symbolsCmd.AddCommand(symbolsPackCmd)
}

func runSymbolsPack(cmd *cobra.Command, args []string) error {
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	src := args[0]
	if output == "" {
		output = strings.TrimSuffix(src, filepath.Ext(src)) + ".psym"
	}

	m, err := symbols.LoadModule(src)
	if err != nil {
		return err
	}
	data, err := symbols.Marshal(m)
	if err != nil {
		return fmt.Errorf("%s: failed to encode module: %w", src, err)
	}
	if err := writeFileAtomic(output, data); err != nil {
		return err
	}
	if !quiet {
		fmt.Fprintf(cmd.OutOrStdout(), "packed %s: %d types, %d bytes -> %s\n", m.Name, len(m.Types), len(data), output)
	}
	return nil
}
