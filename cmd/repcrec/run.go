package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nyudb/repcrec/internal/config"
	"github.com/nyudb/repcrec/internal/engine"
	"github.com/nyudb/repcrec/internal/instr"
	"github.com/nyudb/repcrec/internal/rlog"
)

var runCmd = &cobra.Command{
	Use:   "run [input-file]",
	Short: "Replay one instruction file (or every file in a directory) and print the output stream",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runE,
}

func init() {
	runCmd.Flags().String("output", "", "Write output to this file instead of stdout")
	runCmd.Flags().String("all", "", "Replay every *.txt file in this directory instead of a single input file")
	runCmd.Flags().Bool("metrics", false, "Serve Prometheus metrics on :9090/metrics while running")
}

func runE(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	var cfg config.Config
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	allDir, _ := cmd.Flags().GetString("all")
	if allDir != "" {
		return runBatch(cmd, allDir)
	}

	path := cfg.InputFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("repcrec run: expected exactly one input file (or --all <dir>)")
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath == "" {
		outputPath = cfg.OutputFile
	}
	return runOne(cmd, path, outputPath)
}

// runOne replays a single instruction file: read every line, skip inline
// dump() lines, then emit exactly one dump once the stream is exhausted.
func runOne(cmd *cobra.Command, inputPath, outputPath string) error {
	in, err := openInput(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, closeOut, err := openOutput(outputPath)
	if err != nil {
		return err
	}
	defer closeOut()

	metricsEnabled, _ := cmd.Flags().GetBool("metrics")
	var m *engine.Metrics
	if metricsEnabled {
		m = engine.NewMetrics()
		reg := prometheus.NewRegistry()
		m.MustRegister(reg)
		go serveMetrics(reg)
	}

	eng := engine.New(
		engine.WithOutput(out),
		engine.WithLogger(rlog.WithRun()),
		engine.WithMetrics(m),
	)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if instr.IsDump(line) {
			continue
		}
		i, err := instr.Parse(line)
		if err != nil {
			return err
		}
		eng.Step(i)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("repcrec run: reading %s: %w", inputPath, err)
	}

	eng.Finish()
	return nil
}

func runBatch(cmd *cobra.Command, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("repcrec run --all: %w", err)
	}
	outDir := filepath.Join(filepath.Dir(dir), "output")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("repcrec run --all: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".txt" {
			continue
		}
		in := filepath.Join(dir, e.Name())
		out := filepath.Join(outDir, e.Name())
		rlog.Info("replaying " + in)
		if err := runOne(cmd, in, out); err != nil {
			return fmt.Errorf("repcrec run --all: %s: %w", e.Name(), err)
		}
	}
	return nil
}

func openInput(path string) (*os.File, error) {
	if path == "-" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("repcrec run: %w", err)
	}
	return f, nil
}

func openOutput(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("repcrec run: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func serveMetrics(reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":9090", mux); err != nil {
		rlog.Errorf("metrics server", err)
	}
}
