package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"kickback-engine/pkg/config"
	"kickback-engine/pkg/db"
	"kickback-engine/pkg/gen"
	"kickback-engine/pkg/logger"
	"kickback-engine/services/campaign"
)

var (
	name      = flag.String("name", "Demo kickback campaign", "campaign name")
	product   = flag.String("product", campaign.AllProducts, "product id the campaign applies to")
	rate      = flag.String("rate", "5", "kickback rate in percent")
	target    = flag.String("target", "10000", "sales target")
	days      = flag.Int("days", 30, "duration in days")
	start     = flag.String("start", "", "start day YYYY-MM-DD, defaults to today")
	retailers = flag.String("retailers", "", "comma separated eligible retailer emails")
)

func main() {
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		campaign.Module,
		fx.Invoke(seed),
		fx.NopLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	_ = app.Stop(context.Background())
}

func seed(svc *campaign.Service) error {
	in := campaign.Input{
		Name:         *name,
		ProductID:    *product,
		KickbackRate: decimal.RequireFromString(*rate),
		SalesTarget:  decimal.RequireFromString(*target),
		DurationDays: *days,
		StartDate:    *start,
		Metadata:     map[string]any{"source": "seed"},
	}
	if *retailers != "" {
		in.Retailers = strings.Split(*retailers, ",")
	}

	c, err := svc.Create(context.Background(), in, "seed")
	if err != nil {
		return err
	}
	zap.L().Info("campaign seeded",
		zap.String("campaign_id", c.ID),
		zap.String("code", c.Code),
		zap.String("start", campaign.DayKey(c.StartDate)),
		zap.String("end", campaign.DayKey(c.EndDate)),
	)
	return nil
}
