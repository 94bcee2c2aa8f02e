package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/bulwark-run/ecosphere/pkg/adapter"
	"github.com/bulwark-run/ecosphere/pkg/config"
	"github.com/bulwark-run/ecosphere/pkg/epack"
	"github.com/bulwark-run/ecosphere/pkg/kernelruntime"
	"github.com/bulwark-run/ecosphere/pkg/policy"
	"github.com/bulwark-run/ecosphere/pkg/replay"
)

// ANSI colors, kept minimal — just enough to flag pass/fail in doctor output.
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatcher, factored out from main so it's testable without
// exiting the test process.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServeCmd(stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(stdout, stderr)
	case "verify-chain":
		return runVerifyChainCmd(args[2:], stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "doctor":
		return runDoctorCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "ecosphere — deterministic governance kernel")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: kernel <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the HTTP server (default)")
	fmt.Fprintln(w, "  verify-chain   Verify an EPACK chain read from a file")
	fmt.Fprintln(w, "  replay         Replay an EPACK chain and print step verdicts")
	fmt.Fprintln(w, "  doctor         Run local environment health checks")
}

func buildRegistry() *adapter.Registry {
	reg := adapter.NewRegistry()
	reg.Register("stub", adapter.NewStub)
	return reg
}

func loadKernelRuntime() (*kernelruntime.Runtime, *config.Config, error) {
	cfg := config.Load()

	doc, err := policy.LoadFile(cfg.PolicyPath)
	if err != nil {
		return nil, cfg, fmt.Errorf("load policy %s: %w", cfg.PolicyPath, err)
	}

	rt, err := kernelruntime.New(cfg, doc, buildRegistry())
	if err != nil {
		return nil, cfg, fmt.Errorf("build runtime: %w", err)
	}
	return rt, cfg, nil
}

func runServeCmd(stdout, stderr io.Writer) int {
	logger := slog.Default()
	fmt.Fprintf(stdout, "%secosphere kernel starting...%s\n", colorBold, colorReset)

	rt, cfg, err := loadKernelRuntime()
	if err != nil {
		logger.Error("failed to build kernel runtime", "error", err)
		return 1
	}

	addr := ":8081"
	if v := os.Getenv("ECOSPHERE_LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := kernelruntime.NewServer(cfg, rt)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("kernel listening", "addr", addr, "mode", cfg.KernelMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		return 1
	}
	return 0
}

// verifyChainFile is the on-disk shape verify-chain and replay both read:
// a JSON array of EPACK records, e.g. what a File sink accumulates for one
// session.
type verifyChainFile struct {
	Records []epack.Record `json:"records"`
}

func readChainFile(path string) ([]epack.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f verifyChainFile
	if err := json.Unmarshal(data, &f); err == nil && len(f.Records) > 0 {
		return f.Records, nil
	}
	var records []epack.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

func runVerifyChainCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("verify-chain", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var path string
	cmd.StringVar(&path, "chain", "", "Path to a JSON file of EPACK records (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		fmt.Fprintln(stderr, "Error: --chain is required")
		return 2
	}

	cfg := config.Load()
	records, err := readChainFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if err := epack.VerifyChain(records, cfg.HashAlgorithm); err != nil {
		fmt.Fprintf(stdout, "%sINVALID%s: %v\n", colorRed, colorReset, err)
		return 1
	}
	fmt.Fprintf(stdout, "%sVALID%s: %d records\n", colorGreen, colorReset, len(records))
	return 0
}

func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var path string
	var jsonOut bool
	cmd.StringVar(&path, "chain", "", "Path to a JSON file of EPACK records (REQUIRED)")
	cmd.BoolVar(&jsonOut, "json", false, "Print full results as JSON instead of a summary")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if path == "" {
		fmt.Fprintln(stderr, "Error: --chain is required")
		return 2
	}

	cfg := config.Load()
	records, err := readChainFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	results := replay.ReplayChain(records, replay.Options{Algo: cfg.HashAlgorithm})

	if jsonOut {
		data, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(stdout, string(data))
		return 0
	}

	exitCode := 0
	for _, r := range results {
		color := colorGreen
		if r.Outcome == replay.TamperDetected {
			color = colorRed
			exitCode = 1
		} else if r.Outcome == replay.Drift {
			color = colorYellow
		}
		fmt.Fprintf(stdout, "seq=%d %s%s%s determinism=%.0f%%\n", r.Seq, color, r.Outcome, colorReset, r.DeterminismIndex)
	}
	return exitCode
}

func runDoctorCmd(stdout, stderr io.Writer) int {
	type checkResult struct {
		Name   string `json:"name"`
		Status string `json:"status"`
		Detail string `json:"detail,omitempty"`
	}

	var results []checkResult
	allOK := true

	results = append(results, checkResult{
		Name:   "go_runtime",
		Status: "ok",
		Detail: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	cfg := config.Load()
	if len(cfg.EpackSigningKey) == 0 {
		results = append(results, checkResult{Name: "epack_signing_key", Status: "fail", Detail: "EPACK_SIGNING_KEY not set"})
		allOK = false
	} else {
		results = append(results, checkResult{Name: "epack_signing_key", Status: "ok"})
	}

	if _, err := policy.LoadFile(cfg.PolicyPath); err != nil {
		results = append(results, checkResult{Name: "policy_file", Status: "fail", Detail: err.Error()})
		allOK = false
	} else {
		results = append(results, checkResult{Name: "policy_file", Status: "ok", Detail: cfg.PolicyPath})
	}

	if cfg.PersistEpacks {
		if _, err := os.Stat(cfg.EpackStorePath); err != nil && !os.IsNotExist(err) {
			results = append(results, checkResult{Name: "epack_store_path", Status: "warn", Detail: err.Error()})
		} else {
			results = append(results, checkResult{Name: "epack_store_path", Status: "ok", Detail: cfg.EpackStorePath})
		}
	}

	for _, r := range results {
		color := colorGreen
		switch r.Status {
		case "fail":
			color = colorRed
		case "warn":
			color = colorYellow
		}
		fmt.Fprintf(stdout, "%s%-20s%s %s %s\n", color, r.Name, colorReset, r.Status, r.Detail)
	}

	if !allOK {
		return 1
	}
	return 0
}
