package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	microguard "github.com/sanjai-web/Micro-Plastic-Detection"
)

func main() {
	cfg, err := microguard.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	eng, err := microguard.NewEngine(cfg)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Login("demo-user"); err != nil {
		log.Fatalf("login: %v", err)
	}

	// Simulate a sensor that reports a few readings during the scan.
	h, err := eng.Start(ctx, microguard.CategoryWater)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	go func() {
		for _, level := range []float64{8, 14, 19} {
			time.Sleep(time.Second)
			_ = eng.PublishLevel(microguard.CategoryWater, level)
		}
	}()

	out, err := h.Wait(ctx)
	if err != nil {
		log.Fatalf("wait: %v", err)
	}
	if out.Record != nil {
		fmt.Printf("%s water: %.0f%% (%s risk)\n", out.Record.Timestamp.Format(time.RFC3339),
			out.Record.Reading.Level, out.Record.Classification.Tier)
	} else {
		fmt.Printf("session ended: %s\n", out.State)
	}

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("engine exited: %v", err)
	}
}
