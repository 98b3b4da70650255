package services

import (
	"context"
	"log"

	"school-library/internal/core/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "school-library/circulation"

// engineMetrics holds the circulation counters
type engineMetrics struct {
	loansCreated          metric.Int64Counter
	loansReturned         metric.Int64Counter
	loansRenewed          metric.Int64Counter
	reservationsFulfilled metric.Int64Counter
	finesPersisted        metric.Int64Counter
	rejections            metric.Int64Counter
}

func newEngineMetrics() *engineMetrics {
	meter := otel.Meter(instrumentationName)
	return &engineMetrics{
		loansCreated:          counter(meter, "library.loans.created", "Loans opened"),
		loansReturned:         counter(meter, "library.loans.returned", "Loans closed"),
		loansRenewed:          counter(meter, "library.loans.renewed", "Loan renewals"),
		reservationsFulfilled: counter(meter, "library.reservations.fulfilled", "Reservations turned into loans"),
		finesPersisted:        counter(meter, "library.fines.persisted", "Recomputed fines written back"),
		rejections:            counter(meter, "library.policy.rejections", "Operations refused by lending policy"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Printf("⚠️ Failed to create counter %s: %v", name, err)
		return noop.Int64Counter{}
	}
	return c
}

// rejected counts policy rejections by code
func (m *engineMetrics) rejected(ctx context.Context, err error) {
	if code := domain.RejectionCode(err); code != "" {
		m.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", code)))
	}
}

// endSpan closes span, marking infrastructure failures as errors.
// Policy rejections are expected outcomes and only tagged.
func endSpan(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	if code := domain.RejectionCode(err); code != "" {
		span.SetAttributes(attribute.String("rejection.code", code))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
