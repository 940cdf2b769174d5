package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	microguard "github.com/sanjai-web/Micro-Plastic-Detection"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "detect":
		err = detectCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "certificate":
		err = certificateCommand(os.Args[2:])
	case "replay":
		err = replayCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("microguard %s: %v", cmd, err)
	}
}

func loadConfig(path string) (*microguard.Config, error) {
	if path == "" {
		return microguard.DefaultConfig()
	}
	cfg, err := microguard.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openEngine loads the config, builds an engine and signs actor in.
func openEngine(cfgPath, actor string, opts ...microguard.Option) (*microguard.Engine, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	eng, err := microguard.NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if actor != "" {
		if err := eng.Login(actor); err != nil {
			_ = eng.Shutdown(context.Background())
			return nil, err
		}
	}
	return eng, nil
}

func detectCommand(args []string) error {
	fs := flag.NewFlagSet("detect", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file (defaults apply when empty)")
	actor := fs.String("actor", "", "Actor id to run the session for")
	catName := fs.String("category", "water", "Sample category: blood or water")
	level := fs.Float64("level", -1, "Publish this level into the local hub after the session starts")
	retries := fs.Int("retries", 2, "Retries of a failed record write")
	serveMetrics := fs.Bool("metrics", false, "Serve /metrics and /healthz while the session runs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *actor == "" {
		return errors.New("-actor is required")
	}
	cat, err := microguard.ParseCategory(*catName)
	if err != nil {
		return err
	}

	eng, err := openEngine(*cfgPath, *actor)
	if err != nil {
		return err
	}
	defer eng.Shutdown(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	metricsCtx, stopMetrics := context.WithCancel(gctx)
	defer stopMetrics()
	if *serveMetrics {
		g.Go(func() error { return eng.ServeMetrics(metricsCtx) })
	}
	g.Go(func() error {
		defer stopMetrics()
		return runDetection(gctx, eng, cat, *level, *retries)
	})
	return g.Wait()
}

func runDetection(ctx context.Context, eng *microguard.Engine, cat microguard.Category, level float64, retries int) error {
	h, err := eng.Start(ctx, cat)
	if err != nil {
		return err
	}
	fmt.Printf("Scanning %s sample for %s...\n", cat.DisplayName(), eng.Policy().ScanDuration)
	if level >= 0 {
		if err := eng.PublishLevel(cat, level); err != nil {
			return fmt.Errorf("publish level: %w", err)
		}
	}

	out, err := h.Wait(ctx)
	if err != nil {
		eng.CancelSession(h)
		return err
	}
	for attempt := 0; out.State == microguard.StatePersistFailed && attempt < retries; attempt++ {
		fmt.Printf("Saving the result failed (%v), retrying...\n", out.Err)
		if _, err := eng.Retry(ctx, h); err != nil {
			out.Err = err
			continue
		}
		out = h.Outcome()
	}

	switch out.State {
	case microguard.StateFinalized:
		printRecord(*out.Record, out.Synthetic)
		return nil
	case microguard.StateNoData:
		fmt.Println("No reading arrived before the deadline. Check the sensor and try again.")
		return nil
	case microguard.StateCancelled:
		return microguard.ErrCancelled
	default:
		return fmt.Errorf("session ended in %s: %w", out.State, out.Err)
	}
}

func printRecord(rec microguard.DetectionRecord, synthetic bool) {
	c := rec.Classification
	fmt.Printf("Level:     %.1f%%", rec.Reading.Level)
	if synthetic {
		fmt.Print(" (estimated, no live reading)")
	}
	fmt.Println()
	fmt.Printf("Risk:      %s\n", c.Tier)
	fmt.Printf("Summary:   %s\n", c.Summary)
	fmt.Printf("Impact:    %s\n", c.Impact)
	fmt.Println("Remedies:")
	for _, r := range c.Remedies {
		fmt.Printf("  - %s\n", r)
	}
	fmt.Printf("Next test: %s (in %d days)\n", rec.NextTestDate.Format("2006-01-02"), c.RetestDays)
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	actor := fs.String("actor", "", "Actor id whose records are listed")
	catName := fs.String("category", "", "Only list this category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *actor == "" {
		return errors.New("-actor is required")
	}
	var cat *microguard.Category
	if *catName != "" {
		c, err := microguard.ParseCategory(*catName)
		if err != nil {
			return err
		}
		cat = &c
	}

	eng, err := openEngine(*cfgPath, *actor)
	if err != nil {
		return err
	}
	defer eng.Shutdown(context.Background())

	ctx := context.Background()
	recs, err := eng.History(ctx, cat)
	if err != nil {
		return err
	}
	sum, err := eng.Summary(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCATEGORY\tLEVEL\tRISK\tNEXT TEST")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%s\t%s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04"),
			r.Category.DisplayName(),
			r.Reading.Level,
			r.Classification.Tier,
			r.NextTestDate.Format("2006-01-02"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	switch {
	case sum.Total == 0:
		fmt.Println("No tests yet.")
	case sum.Due():
		fmt.Println("A retest is due now.")
	default:
		fmt.Printf("Next recommended test: %s\n", sum.NextTest.Format("2006-01-02"))
	}
	return nil
}

func certificateCommand(args []string) error {
	fs := flag.NewFlagSet("certificate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	actor := fs.String("actor", "", "Actor id whose latest record is certified")
	catName := fs.String("category", "water", "Sample category: blood or water")
	name := fs.String("name", "", "Name printed on the certificate")
	email := fs.String("email", "", "Email printed on the certificate")
	outDir := fs.String("out", ".", "Directory the certificate is written to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *actor == "" {
		return errors.New("-actor is required")
	}
	cat, err := microguard.ParseCategory(*catName)
	if err != nil {
		return err
	}

	eng, err := openEngine(*cfgPath, *actor)
	if err != nil {
		return err
	}
	defer eng.Shutdown(context.Background())

	ctx := context.Background()
	recs, err := eng.History(ctx, &cat)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		return fmt.Errorf("no %s records for %s", cat, *actor)
	}

	doc, err := eng.Certificate(ctx, recs[0], microguard.Profile{Name: *name, Email: *email})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(*outDir, doc.Filename)
	if err := os.WriteFile(path, doc.Body, 0o644); err != nil {
		return err
	}
	fmt.Printf("certificate %s written to %s\n", doc.ID, path)
	return nil
}

func replayCommand(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// NewEngine replays on open; the explicit pass reports what is still pending.
	eng, err := openEngine(*cfgPath, "")
	if err != nil {
		return err
	}
	defer eng.Shutdown(context.Background())

	res, err := eng.Recover(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("journal replay: replayed=%d failed=%d\n", res.Replayed, res.Failed)
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := microguard.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"microguard_sessions_started_total",
	"microguard_sessions_finalized_total",
	"microguard_sessions_no_data_total",
	"microguard_active_sessions",
	"microguard_journal_size_bytes",
}

func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(statsTargets))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range statsTargets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %f", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] started=%.0f finalized=%.0f no_data=%.0f active=%.0f journal_bytes=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["microguard_sessions_started_total"],
		values["microguard_sessions_finalized_total"],
		values["microguard_sessions_no_data_total"],
		values["microguard_active_sessions"],
		values["microguard_journal_size_bytes"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`MicroGuard CLI

Usage:
  microguard <command> [flags]

Commands:
  detect       Run one detection session and print the result
  history      List an actor's records and the next recommended test
  certificate  Write a certificate for an actor's latest record
  replay       Re-append journaled records that never reached the store
  validate     Load and validate a config file
  stats        Poll the Prometheus metrics endpoint and print live counters

Examples:
  microguard detect -actor alice -category water -level 18
  microguard history -config ./data/config.yaml -actor alice
  microguard certificate -actor alice -category blood -name "Alice" -out ./certs
  microguard stats -url http://localhost:9100/metrics -interval 1s
`)
}
