package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/shinelocal/spotlight/pkg/telemetry"
)

var (
	// Checkout counters
	CheckoutsStarted  *telemetry.Counter
	CheckoutsConflict *telemetry.Counter
	CheckoutsFailed   *telemetry.Counter

	// Reconciler counters
	WebhooksReceived  *telemetry.Counter
	OutcomesConfirmed *telemetry.Counter
	OutcomesCanceled  *telemetry.Counter
	OutcomesSkipped   *telemetry.Counter
	WebhooksFailed    *telemetry.Counter

	// Histograms
	RemainingAreaKm2      *telemetry.Histogram
	MonthlyPriceAmount    *telemetry.Histogram
	WebhookProcessingTime *telemetry.Histogram
	RequestDuration       *telemetry.Histogram

	// Gauges
	LocksHeld *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init initializes all sponsorship metrics
func Init() error {
	initOnce.Do(func() {
		initErr = initMetrics()
	})
	return initErr
}

func initMetrics() error {
	var err error

	CheckoutsStarted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_checkouts_started_total",
		Description: "Total number of checkout sessions created",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	CheckoutsConflict, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_checkouts_conflict_total",
		Description: "Total number of checkouts rejected with a conflict code",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	CheckoutsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_checkouts_failed_total",
		Description: "Total number of checkouts failed on internal errors",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksReceived, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_webhooks_received_total",
		Description: "Total number of billing webhooks received",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutcomesConfirmed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_outcomes_confirmed_total",
		Description: "Total number of sponsorships confirmed into the ledger",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutcomesCanceled, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_outcomes_canceled_total",
		Description: "Total number of subscriptions canceled during reconciliation",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	OutcomesSkipped, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_outcomes_skipped_total",
		Description: "Total number of events skipped (missing metadata, unknown rows)",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	WebhooksFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "sponsorship_webhooks_failed_total",
		Description: "Total number of webhooks that failed processing",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	RemainingAreaKm2, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "sponsorship_remaining_area_km2",
		Description: "Remaining purchasable area at checkout time",
		Unit:        "km2",
	}, []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250})
	if err != nil {
		return err
	}

	MonthlyPriceAmount, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "sponsorship_monthly_price",
		Description: "Monthly price distribution of created checkouts",
		Unit:        "GBP",
	}, []float64{5, 10, 25, 50, 100, 250, 500, 1000})
	if err != nil {
		return err
	}

	WebhookProcessingTime, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "sponsorship_webhook_processing_seconds",
		Description: "Webhook processing duration",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5})
	if err != nil {
		return err
	}

	RequestDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "sponsorship_request_duration_seconds",
		Description: "HTTP request duration in seconds",
		Unit:        "s",
	}, []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10})
	if err != nil {
		return err
	}

	LocksHeld, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "sponsorship_locks_held",
		Description: "Current number of advisory checkout locks held",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordCheckoutConflict records a rejected checkout by conflict code
func RecordCheckoutConflict(ctx context.Context, code string) {
	if CheckoutsConflict != nil {
		CheckoutsConflict.Inc(ctx, attribute.String("code", code))
	}
}

// RecordOutcome records a reconciliation outcome by action and reason
func RecordOutcome(ctx context.Context, action, reason string) {
	switch action {
	case "confirmed":
		if OutcomesConfirmed != nil {
			OutcomesConfirmed.Inc(ctx)
		}
	case "canceled":
		if OutcomesCanceled != nil {
			OutcomesCanceled.Inc(ctx, attribute.String("reason", reason))
		}
	case "skipped", "ignored":
		if OutcomesSkipped != nil {
			OutcomesSkipped.Inc(ctx, attribute.String("reason", reason))
		}
	}
}
