// Command simulate runs a scenario without a server and prints the result.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"epinet/internal/codec"
	"epinet/internal/config"
	"epinet/internal/loader"
	"epinet/internal/report"
	"epinet/internal/simulation"
)

func main() {
	configPath := flag.String("config", "", "Config file path (default: search EPINET_CONFIG, ./epinet.yaml, user config dir)")
	scenarioFile := flag.String("scenario", "", "Scenario file (overrides config)")
	steps := flag.Int("steps", 1000, "Number of steps to run")
	dt := flag.Float64("dt", 0, "Time step in days (default: from the configured pace)")
	every := flag.Int("every", 100, "Print a report every N steps (0 prints only the final state)")
	format := flag.String("format", "text", "Output format for the final state: text, json, yaml, csv")
	out := flag.String("out", "", "Write the final state to this file instead of stdout")
	flag.Parse()

	log.SetFlags(0)
	log.SetPrefix("simulate: ")

	if err := run(*configPath, *scenarioFile, *steps, *dt, *every, *format, *out); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, scenarioFile string, steps int, dt float64, every int, format, out string) error {
	if steps < 1 {
		return fmt.Errorf("steps must be at least 1, got %d", steps)
	}

	var exporter codec.Exporter
	if format != "text" {
		e, ok := codec.ExporterFor(format)
		if !ok {
			return fmt.Errorf("unknown format %q", format)
		}
		exporter = e
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	source := cfg.Scenario
	if scenarioFile != "" {
		source = config.Scenario{File: scenarioFile}
	}
	if dt == 0 {
		dt = cfg.EffectiveRun().TimeStep
	}

	scenario, err := loader.Resolve(source)
	if err != nil {
		return err
	}
	system, err := loader.BuildSystem(scenario)
	if err != nil {
		return err
	}

	driver := simulation.NewDriver(system)
	var progress *report.TextObserver
	if every > 0 {
		progress = report.NewTextObserver(os.Stdout, every)
		driver.AddObserver(progress)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	final, err := driver.Run(ctx, dt, steps)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if final == nil {
		final = driver.Snapshot()
	}
	if progress != nil {
		if err := progress.Err(); err != nil {
			return fmt.Errorf("report: %w", err)
		}
	}

	var w io.Writer = os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	if exporter != nil {
		return exporter.Export(final, w)
	}
	// The observer already printed the last tick when it fell on the cadence
	if progress != nil && out == "" && final.Tick%every == 0 {
		return nil
	}
	return report.Write(w, final)
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
