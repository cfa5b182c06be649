package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"proxygen/internal/symbols"
)

var indexCmd = &cobra.Command{
	Use:   "index [flags] <module>",
	Short: "Show the types recorded in a client symbol module",
	Args:  cobra.ExactArgs(1),
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().String("format", "table", "output format (table|yaml|json)")
	indexCmd.Flags().Bool("members", false, "list members under each type (table format)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	showMembers, err := cmd.Flags().GetBool("members")
	if err != nil {
		return fmt.Errorf("failed to get members flag: %w", err)
	}
	quiet, err := cmd.Root().PersistentFlags().GetBool("quiet")
	if err != nil {
		return fmt.Errorf("failed to get quiet flag: %w", err)
	}

	idx, err := symbols.ReadFile(cmd.Context(), args[0])
	if err != nil {
		return exitWith(1, err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "table":
		if !quiet {
			printIndexHeader(out, idx)
		}
		printIndexTable(out, idx, showMembers)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(symbols.Describe(idx)); err != nil {
			return fmt.Errorf("failed to encode module: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(symbols.Describe(idx)); err != nil {
			return fmt.Errorf("failed to encode module: %w", err)
		}
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	return nil
}

func printIndexHeader(out io.Writer, idx *symbols.Index) {
	fmt.Fprintf(out, "module %s (age %d, %d types, %d documents)\n", idx.Name(), idx.Age, idx.Len(), len(idx.Documents))
	if idx.Partial {
		reason := idx.PartialReason
		if reason == "" {
			reason = "no member-level symbols"
		}
		fmt.Fprintf(out, "partial: %s\n", reason)
	}
	if len(idx.Duplicates) > 0 {
		fmt.Fprintf(out, "duplicate records: %d\n", len(idx.Duplicates))
	}
}

// printIndexTable prints an aligned type table. Names may be wide, so
// columns are padded by display width.
func printIndexTable(out io.Writer, idx *symbols.Index, showMembers bool) {
	rows := [][]string{{"TYPE", "KIND", "VISIBILITY", "MEMBERS", "DOCUMENT"}}
	type memberRows struct {
		after int
		lines []string
	}
	var members []memberRows
	for _, key := range idx.Keys() {
		t, _ := idx.Lookup(key.Namespace, key.Name)
		rows = append(rows, []string{
			key.String(),
			t.Kind.String(),
			t.Visibility.String(),
			fmt.Sprint(len(t.Members)),
			t.Document,
		})
		if showMembers && len(t.Members) > 0 {
			lines := make([]string, 0, len(t.Members))
			for _, m := range t.Members {
				lines = append(lines, memberLine(m))
			}
			members = append(members, memberRows{after: len(rows) - 1, lines: lines})
		}
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	next := 0
	for r, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString("  ")
		}
		fmt.Fprintln(out, strings.TrimRight(b.String(), " "))
		if next < len(members) && members[next].after == r {
			for _, line := range members[next].lines {
				fmt.Fprintf(out, "    %s\n", line)
			}
			next++
		}
	}
}

func memberLine(m symbols.MemberSymbol) string {
	var flags []string
	if m.Key {
		flags = append(flags, "key")
	}
	if m.Required {
		flags = append(flags, "required")
	}
	if m.Computed {
		flags = append(flags, "computed")
	}
	if m.Collection {
		flags = append(flags, "collection")
	}
	if m.Association != "" {
		flags = append(flags, "-> "+m.Association)
	}
	line := fmt.Sprintf("%s %s %s", m.Visibility, m.Name, m.Type)
	if len(flags) > 0 {
		line += " [" + strings.Join(flags, ", ") + "]"
	}
	return line
}
