package emit

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"strings"

	"proxygen/internal/diag"
)

// PostProcessor transforms a finished unit. Processors run in order after
// emission; a failing processor leaves the unit as it was before that step.
type PostProcessor interface {
	Name() string
	Process(ctx context.Context, u Unit) ([]byte, error)
}

// Func adapts a function to PostProcessor.
type Func struct {
	Label string
	Fn    func(ctx context.Context, u Unit) ([]byte, error)
}

func (f Func) Name() string { return f.Label }

func (f Func) Process(ctx context.Context, u Unit) ([]byte, error) { return f.Fn(ctx, u) }

// Gofmt re-formats unit text, typically after text-level processors.
type Gofmt struct{}

func (Gofmt) Name() string { return "gofmt" }

func (Gofmt) Process(_ context.Context, u Unit) ([]byte, error) {
	return format.Source(u.Text)
}

// Header prepends a comment block (a license notice, say) to every unit.
type Header struct {
	Text string
}

func (Header) Name() string { return "header" }

func (h Header) Process(_ context.Context, u Unit) ([]byte, error) {
	text := strings.TrimRight(h.Text, "\n")
	if text == "" {
		return u.Text, nil
	}
	var b bytes.Buffer
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "//") {
			b.WriteString(line)
		} else if line == "" {
			b.WriteString("//")
		} else {
			b.WriteString("// " + line)
		}
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(u.Text)
	return b.Bytes(), nil
}

func postProcess(ctx context.Context, units []Unit, procs []PostProcessor, r diag.Reporter) []Unit {
	if len(procs) == 0 {
		return units
	}
	for i := range units {
		for _, p := range procs {
			text, err := p.Process(ctx, units[i])
			if err == nil && len(text) == 0 {
				err = fmt.Errorf("empty output")
			}
			if err != nil {
				r.Report(diag.NewWarning(diag.EmtPostProcessFailed, units[i].Name,
					fmt.Sprintf("post-processor %s failed on %s: %v", p.Name(), units[i].FileName, err)))
				continue
			}
			units[i].Text = text
		}
	}
	return units
}
