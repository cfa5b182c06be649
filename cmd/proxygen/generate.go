package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"proxygen/internal/descriptor"
	"proxygen/internal/diag"
	"proxygen/internal/diagfmt"
	"proxygen/internal/driver"
	"proxygen/internal/emit"
	"proxygen/internal/symbols"
)

const noManifestMessage = "no proxygen.toml found\nplease specify descriptors explicitly, e.g.:\n  proxygen generate --descriptors api.yaml --module client.psym"

var generateCmd = &cobra.Command{
	Use:   "generate [flags]",
	Short: "Generate client proxies from service descriptors",
	Long: `Generate reads the server descriptors, indexes the client symbol modules and
writes one Go source unit per generated type or service into the output directory`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().String("config", "", "path to proxygen.toml (default: search upwards from the working directory)")
	generateCmd.Flags().String("descriptors", "", "server descriptor file (.json|.yaml|.yml)")
	generateCmd.Flags().StringArray("module", nil, "client symbol module, nearer references first (repeatable)")
	generateCmd.Flags().String("out", "", "output directory for generated units")
	generateCmd.Flags().String("package", "", "package clause of generated units (default \"proxy\")")
	generateCmd.Flags().Int("jobs", 0, "max parallel workers (0=auto)")
	generateCmd.Flags().Duration("timeout", 0, "per-module read timeout (0=default)")
	generateCmd.Flags().String("format", "pretty", "diagnostics format (pretty|json|short)")
	generateCmd.Flags().Bool("warnings-as-errors", false, "treat warnings as errors")
	generateCmd.Flags().Bool("no-cache", false, "disable the persistent symbol cache")
	generateCmd.Flags().Bool("with-notes", true, "include diagnostic notes in output")
	generateCmd.Flags().Bool("fullpath", false, "emit absolute module paths in output")
	generateCmd.Flags().Bool("dry-run", false, "report what would be written without touching the output directory")
}

// generateOptions is the merged view of proxygen.toml and the command flags.
type generateOptions struct {
	descriptors string
	modules     []string
	out         string
	pkg         string
	jobs        int
	timeout     time.Duration
	header      string
	namespaces  map[string]string

	diskCache  bool
	cacheDir   string
	memorySize int

	format           string
	warningsAsErrors bool
	withNotes        bool
	fullPath         bool
	dryRun           bool

	maxDiagnostics int
	timings        bool
	quiet          bool
	ui             uiMode
}

func runGenerate(cmd *cobra.Command, args []string) error {
	opts, err := readGenerateOptions(cmd)
	if err != nil {
		return err
	}

	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	set, err := descriptor.Load(opts.descriptors)
	if err != nil {
		return exitWith(diag.ExitFatal, err)
	}

	req, err := buildRequest(cmd, set, opts)
	if err != nil {
		return err
	}

	var res *driver.Result
	if shouldUseTUI(opts.ui, opts.quiet, opts.format) {
		title := fmt.Sprintf("proxygen: %s", filepath.Base(opts.descriptors))
		res, err = runGenerateWithUI(ctx, title, req)
	} else {
		res, err = driver.Run(ctx, req)
	}
	if res == nil {
		return exitWith(diag.ExitFatal, err)
	}

	errOut := cmd.ErrOrStderr()
	if perr := printDiagnostics(cmd, res, opts); perr != nil {
		return perr
	}
	if err != nil && !res.Fatal {
		return exitWith(diag.ExitFatal, err)
	}

	if !res.Fatal && opts.out != "" {
		written, werr := writeUnits(opts.out, res.Units, opts.dryRun)
		if werr != nil {
			return exitWith(diag.ExitFatal, werr)
		}
		if !opts.quiet && opts.format != "json" {
			verb := "wrote"
			if opts.dryRun {
				verb = "would write"
			}
			fmt.Fprintf(errOut, "%s %d units to %s\n", verb, written, opts.out)
		}
	}
	if opts.timings && opts.format != "json" {
		printPhaseTimings(errOut, res.Timings)
	}

	status := res.ExitStatus(opts.warningsAsErrors)
	if status != diag.ExitOK {
		if status != diag.ExitErrors || res.Cancelled {
			dumpTrace(cmd, errOut)
		}
		return exitWith(status, nil)
	}
	return nil
}

func readGenerateOptions(cmd *cobra.Command) (*generateOptions, error) {
	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	configPath, err := flags.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	descriptors, err := flags.GetString("descriptors")
	if err != nil {
		return nil, fmt.Errorf("failed to get descriptors flag: %w", err)
	}

	opts := &generateOptions{diskCache: true}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	manifest, found, err := loadProjectManifest(configPath, wd)
	if err != nil {
		return nil, err
	}
	if found {
		opts.applyManifest(manifest)
	} else if descriptors == "" {
		return nil, errors.New(noManifestMessage)
	}

	if flags.Changed("descriptors") {
		opts.descriptors = descriptors
	}
	if flags.Changed("module") {
		if opts.modules, err = flags.GetStringArray("module"); err != nil {
			return nil, fmt.Errorf("failed to get module flag: %w", err)
		}
	}
	if flags.Changed("out") {
		if opts.out, err = flags.GetString("out"); err != nil {
			return nil, fmt.Errorf("failed to get out flag: %w", err)
		}
	}
	if flags.Changed("package") {
		if opts.pkg, err = flags.GetString("package"); err != nil {
			return nil, fmt.Errorf("failed to get package flag: %w", err)
		}
	}
	if flags.Changed("jobs") {
		if opts.jobs, err = flags.GetInt("jobs"); err != nil {
			return nil, fmt.Errorf("failed to get jobs flag: %w", err)
		}
	}
	if flags.Changed("timeout") {
		if opts.timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, fmt.Errorf("failed to get timeout flag: %w", err)
		}
	}
	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return nil, fmt.Errorf("failed to get no-cache flag: %w", err)
	}
	if noCache {
		opts.diskCache = false
	}

	if opts.format, err = flags.GetString("format"); err != nil {
		return nil, fmt.Errorf("failed to get format flag: %w", err)
	}
	switch opts.format {
	case "pretty", "json", "short":
	default:
		return nil, fmt.Errorf("unknown format: %s", opts.format)
	}
	if opts.warningsAsErrors, err = flags.GetBool("warnings-as-errors"); err != nil {
		return nil, fmt.Errorf("failed to get warnings-as-errors flag: %w", err)
	}
	if opts.withNotes, err = flags.GetBool("with-notes"); err != nil {
		return nil, fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	if opts.fullPath, err = flags.GetBool("fullpath"); err != nil {
		return nil, fmt.Errorf("failed to get fullpath flag: %w", err)
	}
	if opts.dryRun, err = flags.GetBool("dry-run"); err != nil {
		return nil, fmt.Errorf("failed to get dry-run flag: %w", err)
	}

	if opts.maxDiagnostics, err = root.GetInt("max-diagnostics"); err != nil {
		return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	if opts.timings, err = root.GetBool("timings"); err != nil {
		return nil, fmt.Errorf("failed to get timings flag: %w", err)
	}
	if opts.quiet, err = root.GetBool("quiet"); err != nil {
		return nil, fmt.Errorf("failed to get quiet flag: %w", err)
	}
	uiFlag, err := root.GetString("ui")
	if err != nil {
		return nil, fmt.Errorf("failed to get ui flag: %w", err)
	}
	if opts.ui, err = readUIMode(uiFlag); err != nil {
		return nil, err
	}

	if opts.descriptors == "" {
		return nil, errors.New("no descriptors file: set --descriptors or [generate].descriptors")
	}
	if opts.jobs < 0 {
		return nil, errors.New("--jobs must not be negative")
	}
	return opts, nil
}

func (o *generateOptions) applyManifest(m *projectManifest) {
	g := m.Config.Generate
	o.descriptors = g.Descriptors
	o.modules = append([]string(nil), g.Modules...)
	o.out = g.Out
	o.pkg = g.Package
	o.jobs = g.Jobs
	o.timeout = g.timeout()
	o.header = g.Header
	o.namespaces = m.Config.Namespaces
	if m.Config.Cache.Disk != nil {
		o.diskCache = *m.Config.Cache.Disk
	}
	o.cacheDir = m.Config.Cache.Dir
	o.memorySize = m.Config.Cache.Memory
}

func buildRequest(cmd *cobra.Command, set *descriptor.Set, opts *generateOptions) (*driver.Request, error) {
	memory, err := symbols.NewMemoryCache(opts.memorySize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	req := &driver.Request{
		Set:            set,
		Modules:        opts.modules,
		Jobs:           opts.jobs,
		Timeout:        opts.timeout,
		Memory:         memory,
		Package:        opts.pkg,
		Namespaces:     opts.namespaces,
		MaxDiagnostics: opts.maxDiagnostics,
		Timings:        opts.timings && opts.format == "json",
	}
	if opts.diskCache {
		var disk *symbols.DiskCache
		if opts.cacheDir != "" {
			disk, err = symbols.OpenDiskCacheAt(opts.cacheDir)
		} else {
			disk, err = symbols.OpenDiskCache("proxygen")
		}
		// без дискового кеша генерация продолжается
		if err != nil {
			if !opts.quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "proxygen: disk cache disabled: %v\n", err)
			}
		} else {
			req.Disk = disk
		}
	}
	if opts.header != "" {
		req.Post = append(req.Post, emit.Header{Text: opts.header})
	}
	return req, nil
}

func printDiagnostics(cmd *cobra.Command, res *driver.Result, opts *generateOptions) error {
	out := cmd.OutOrStdout()
	pathMode := diagfmt.PathModeAuto
	if opts.fullPath {
		pathMode = diagfmt.PathModeAbsolute
	}

	switch opts.format {
	case "json":
		jsonOpts := diagfmt.JSONOpts{
			PathMode:     pathMode,
			Max:          opts.maxDiagnostics,
			IncludeNotes: opts.withNotes,
		}
		if err := diagfmt.JSON(out, res.Diagnostics, jsonOpts); err != nil {
			return fmt.Errorf("failed to format diagnostics: %w", err)
		}
	case "short":
		diagfmt.Short(out, res.Diagnostics, pathMode, "")
	default:
		useColor, err := colorEnabled(cmd, os.Stdout)
		if err != nil {
			return fmt.Errorf("failed to get color flag: %w", err)
		}
		if opts.quiet && !hasErrorDiagnostics(res.Diagnostics) {
			return nil
		}
		diagfmt.Pretty(out, res.Diagnostics, diagfmt.PrettyOpts{
			Color:     useColor,
			PathMode:  pathMode,
			Width:     terminalWidth(os.Stdout),
			ShowNotes: opts.withNotes,
		})
		if len(res.Diagnostics) > 0 || res.Dropped > 0 {
			diagfmt.Summary(out, res.Diagnostics, res.Dropped, useColor)
		}
	}
	return nil
}

func hasErrorDiagnostics(diags []diag.Diagnostic) bool {
	errs, _, _ := diag.CountBySeverity(diags)
	return errs > 0
}

// writeUnits writes every unit into dir and returns how many were written.
// Unit file names are flat, so nothing escapes dir.
func writeUnits(dir string, units []emit.Unit, dryRun bool) (int, error) {
	if dryRun {
		return len(units), nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}
	for i, u := range units {
		name := filepath.Base(u.FileName)
		if err := writeFileAtomic(filepath.Join(dir, name), u.Text); err != nil {
			return i, err
		}
	}
	return len(units), nil
}

func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".proxygen-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename into %s: %w", path, err)
	}
	return nil
}

// terminalWidth returns the width of f, or 0 when it is not a terminal.
func terminalWidth(f *os.File) int {
	if !isTerminal(f) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}
