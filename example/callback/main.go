package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sanjai-web/Micro-Plastic-Detection/pkg/microguard"
)

func main() {
	cfg, err := microguard.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	// No sensor is attached here; fall back to an estimated level.
	cfg.Session.OnNoData = microguard.NoDataSynthetic

	printed := make(chan struct{}, 1)
	callback := func(rec microguard.DetectionRecord) error {
		defer func() { printed <- struct{}{} }()
		fmt.Printf("%s actor=%s category=%s level=%.0f%% tier=%s\n",
			rec.Timestamp.Format(time.RFC3339Nano),
			rec.ActorID,
			rec.Category,
			rec.Reading.Level,
			rec.Classification.Tier,
		)
		return nil
	}

	eng, err := microguard.NewEngine(cfg, microguard.WithSubscriber(microguard.NewCallbackSubscriber("stdout", callback)))
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	defer eng.Shutdown(context.Background())

	if err := eng.Login("demo-user"); err != nil {
		log.Fatalf("login: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	out, err := eng.Detect(ctx, microguard.CategoryBlood)
	if err != nil {
		log.Fatalf("detect: %v", err)
	}
	if out.State == microguard.StateFinalized {
		// Subscribers run after the handle resolves.
		select {
		case <-printed:
		case <-ctx.Done():
		}
	}
	fmt.Printf("session ended in state %s (synthetic=%v)\n", out.State, out.Synthetic)
}
