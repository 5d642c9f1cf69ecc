package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all the metric instruments for the blog API
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter
	// ingestion pipeline
	PostsIngestedTotal  metric.Int64Counter
	IngestFailuresTotal metric.Int64Counter
	BlobsWrittenTotal   metric.Int64Counter
	// token service
	TokensIssuedTotal metric.Int64Counter
	ImagesServedTotal metric.Int64Counter
	TokenRejectsTotal metric.Int64Counter
	// limiter
	RateLimitHitsTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	httpRequestsTotal, err := meter.Int64Counter(
		"http_requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests: %w", err)
	}

	httpRequestDuration, err := meter.Float64Histogram(
		"http_request_duration",
		metric.WithDescription("HTTP request latency in ms"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration: %w", err)
	}

	httpActiveRequests, err := meter.Int64UpDownCounter(
		"http_active_requests",
		metric.WithDescription("Number of in-flight requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_active_requests: %w", err)
	}

	postsIngestedTotal, err := meter.Int64Counter(
		"posts_ingested",
		metric.WithDescription("Total number of posts accepted and persisted"),
		metric.WithUnit("{post}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create posts_ingested: %w", err)
	}

	ingestFailuresTotal, err := meter.Int64Counter(
		"ingest_failures",
		metric.WithDescription("Total number of ingestion attempts that did not produce a record"),
		metric.WithUnit("{post}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest_failures: %w", err)
	}

	blobsWrittenTotal, err := meter.Int64Counter(
		"blobs_written",
		metric.WithDescription("Total number of normalized image blobs written"),
		metric.WithUnit("{blob}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create blobs_written: %w", err)
	}

	tokensIssuedTotal, err := meter.Int64Counter(
		"tokens_issued",
		metric.WithDescription("Total number of image access tokens signed"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens_issued: %w", err)
	}

	imagesServedTotal, err := meter.Int64Counter(
		"images_served",
		metric.WithDescription("Total number of image fetches served by token"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create images_served: %w", err)
	}

	tokenRejectsTotal, err := meter.Int64Counter(
		"token_rejects",
		metric.WithDescription("Total number of token issue/fetch attempts refused"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_rejects: %w", err)
	}

	rateLimitHitsTotal, err := meter.Int64Counter(
		"rate_limit_hits",
		metric.WithDescription("Number of rate limiter blocked requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit_hits: %w", err)
	}

	return &Metrics{
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		HTTPActiveRequests:  httpActiveRequests,
		PostsIngestedTotal:  postsIngestedTotal,
		IngestFailuresTotal: ingestFailuresTotal,
		BlobsWrittenTotal:   blobsWrittenTotal,
		TokensIssuedTotal:   tokensIssuedTotal,
		ImagesServedTotal:   imagesServedTotal,
		TokenRejectsTotal:   tokenRejectsTotal,
		RateLimitHitsTotal:  rateLimitHitsTotal,
	}, nil
}
