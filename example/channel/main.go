package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	microguard "github.com/sanjai-web/Micro-Plastic-Detection"
)

func main() {
	cfg, err := microguard.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sub, records, closeRecords := microguard.NewChannelSubscriber("fanout", 32)
	defer closeRecords()

	eng, err := microguard.NewEngine(cfg, microguard.WithSubscriber(sub))
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}

	go fanoutWorker("notify", records)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("engine exited: %v", err)
	}
}

func fanoutWorker(name string, records <-chan microguard.DetectionRecord) {
	for rec := range records {
		fmt.Printf("[%s] %s %s %.0f%% %s, retest by %s\n", name,
			rec.ActorID, rec.Category, rec.Reading.Level, rec.Classification.Tier,
			rec.NextTestDate.Format("2006-01-02"))
	}
}
