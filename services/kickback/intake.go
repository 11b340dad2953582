package kickback

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"kickback-engine/pkg/errutil"
	"kickback-engine/pkg/logger"
	"kickback-engine/pkg/middleware"
	"kickback-engine/pkg/taskname"
	"kickback-engine/services/campaign"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SaleEvent is a sale reported by a point of sale or another channel.
type SaleEvent struct {
	RetailerEmail string          `json:"retailerEmail"`
	RetailerName  string          `json:"retailerName"`
	ProductID     string          `json:"productId"`
	ProductName   string          `json:"productName"`
	SaleAmount    decimal.Decimal `json:"saleAmount"`
	SaleDate      time.Time       `json:"saleDate,omitempty"`
	Channel       string          `json:"channel,omitempty"`
}

// Product is the identifier used for matching: the product id, or the name
// when no id was sent.
func (e SaleEvent) Product() string {
	if p := strings.TrimSpace(e.ProductID); p != "" {
		return p
	}
	return strings.TrimSpace(e.ProductName)
}

func (e SaleEvent) Validate() error {
	var details []errutil.Detail
	if campaign.NormalizeEmail(e.RetailerEmail) == "" {
		details = append(details, errutil.Detail{Field: "retailerEmail", Message: "is required"})
	}
	if e.Product() == "" {
		details = append(details, errutil.Detail{Field: "productId", Message: "productId or productName is required"})
	}
	if !e.SaleAmount.IsPositive() {
		details = append(details, errutil.Detail{Field: "saleAmount", Message: "must be positive"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid sale event", nil, errutil.WithDetails(details...))
	}
	return nil
}

func saleTime(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t
}

// SubmitSale hands a sale to the ledger without reporting failures back to
// the caller. With async intake the event goes through the task queue,
// otherwise it is processed inline.
func (s *Service) SubmitSale(ctx context.Context, ev SaleEvent) {
	log := logger.FromContext(ctx).With(
		zap.String("retailer_email", ev.RetailerEmail),
		zap.String("product", ev.Product()),
		zap.String("channel", ev.Channel),
	)

	ev.SaleDate = saleTime(ev.SaleDate, s.now)
	salesReceived.WithLabelValues(channelLabel(ev.Channel)).Inc()

	if s.asyncIntake && s.enqueuer != nil {
		t, err := NewRecordSaleTask(ev)
		if err == nil {
			_, err = s.enqueuer.Enqueue(ctx, t, asynq.Queue(s.queue), asynq.MaxRetry(5))
		}
		if err == nil {
			log.Debug("sale enqueued")
			return
		}
		log.Warn("failed to enqueue sale, processing inline", zap.Error(err))
	}

	if _, err := s.ProcessSale(ctx, ev); err != nil {
		log.Error("failed to process sale", zap.Error(err))
	}
}

// ProcessSale matches the sale and records it against every matched
// campaign. Per-campaign failures are logged and skipped; only a failure to
// match is returned, since nothing has been recorded at that point.
func (s *Service) ProcessSale(ctx context.Context, ev SaleEvent) (int, error) {
	ctx, span := tracer.Start(ctx, "kickback.ProcessSale")
	defer span.End()

	if err := ev.Validate(); err != nil {
		return 0, err
	}

	log := logger.FromContext(ctx).With(
		zap.String("retailer_email", ev.RetailerEmail),
		zap.String("product", ev.Product()),
	)

	saleDate := saleTime(ev.SaleDate, s.now)
	matched, err := s.matcher.Match(ctx, campaign.Sale{
		RetailerEmail: ev.RetailerEmail,
		Product:       ev.Product(),
		Day:           campaign.Day(saleDate, s.campaigns.Location()),
	})
	if err != nil {
		return 0, err
	}
	if len(matched) == 0 {
		log.Info("sale matched no campaign")
		return 0, nil
	}

	recorded := 0
	for _, c := range matched {
		e, err := s.RecordSale(ctx, SaleRecord{
			CampaignID:    c.ID,
			RetailerEmail: ev.RetailerEmail,
			RetailerName:  ev.RetailerName,
			Amount:        ev.SaleAmount,
			SaleDate:      saleDate,
		})
		if err != nil {
			log.Warn("sale not recorded for campaign", zap.String("campaign_id", c.ID), zap.Error(err))
			continue
		}
		if e != nil {
			recorded++
		}
	}

	log.Info("sale processed", zap.Int("matched", len(matched)), zap.Int("recorded", recorded))
	return recorded, nil
}

func NewRecordSaleTask(ev SaleEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.KickbackRecordSale, payload), nil
}

func channelLabel(ch string) string {
	switch ch {
	case middleware.ChannelPOS, middleware.ChannelOnline, middleware.ChannelPartner, middleware.ChannelAPI:
		return ch
	case "":
		return middleware.ChannelAPI
	default:
		return "other"
	}
}
