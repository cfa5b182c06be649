package main

import (
	"fmt"
	"io"

	"proxygen/internal/observ"
)

func printPhaseTimings(out io.Writer, report observ.Report) {
	if out == nil || len(report.Phases) == 0 {
		return
	}
	for _, p := range report.Phases {
		if p.Note != "" {
			fmt.Fprintf(out, "%-8s %.1f ms (%s)\n", p.Name, p.DurationMS, p.Note)
			continue
		}
		fmt.Fprintf(out, "%-8s %.1f ms\n", p.Name, p.DurationMS)
	}
	fmt.Fprintf(out, "%-8s %.1f ms\n", "total", report.TotalMS)
}
