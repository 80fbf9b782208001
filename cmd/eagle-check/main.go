package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"eaglelink/internal/config"
	"eaglelink/internal/eagle"
	"eaglelink/internal/logging"
)

func main() {
	logging.Setup()
	os.Exit(runCLI(os.Args[1:], os.Stdout, os.Stderr))
}

func runCLI(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("eagle-check", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var timeout time.Duration
	fs.DurationVar(&timeout, "timeout", 5*time.Second, "connection check timeout")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 0 {
		_, _ = fmt.Fprintln(errOut, "usage: eagle-check [--timeout <duration>]")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(errOut, "ERROR: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client := eagle.NewClient(&cfg)
	ok, message := client.TestConnection(ctx)
	_, _ = fmt.Fprintf(out, "%s\n", message)

	if info, err := client.ApplicationInfo(ctx); err == nil {
		if version := info.Get("version").String(); version != "" {
			_, _ = fmt.Fprintf(out, "Eagle version: %s\n", version)
		}
	}

	_, _ = fmt.Fprintf(out, "endpoint=%s ok=%t\n", cfg.BaseURL(), ok)
	if !ok {
		return 1
	}
	return 0
}
