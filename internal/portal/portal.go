// Package portal ties submission building, the record store and dataset
// queries into the operations offered to students and docents.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/accrt/portal/internal/dataset"
	"github.com/accrt/portal/internal/model"
	"github.com/accrt/portal/internal/store"
	"github.com/accrt/portal/internal/submission"
)

// ErrForbidden is returned by docent operations called without a docent session.
var ErrForbidden = errors.New("docent session required")

// Config holds service settings.
type Config struct {
	// Location is the zone stored dates are read in.
	Location *time.Location
	// BiasSentinel is the "no bias" token excluded from frequencies.
	BiasSentinel string
	// StoreRetries is how many extra append attempts Submit makes when the
	// store is unavailable.
	StoreRetries int
	RetryBackoff time.Duration
}

// Service is the submission and query surface.
type Service struct {
	store   store.Store
	builder *submission.Builder
	config  Config
}

// New creates a Service.
func New(s store.Store, b *submission.Builder, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BiasSentinel == "" {
		cfg.BiasSentinel = dataset.DefaultSentinel
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}
	return &Service{store: s, builder: b, config: cfg}
}

// Submit builds a record from a raw simulator evaluation and appends it. It
// returns the builder's errors unchanged and wraps store failures.
func (s *Service) Submit(ctx context.Context, raw string, id model.Identity, times model.AuditTimes) (*model.Confirmation, error) {
	conf, err := s.builder.Build(raw, id, times)
	if err != nil {
		return nil, err
	}
	for _, w := range conf.Warnings {
		slog.Warn("submission warning", "submission_id", conf.SubmissionID, "warning", w)
	}

	err = Retry(ctx, s.config.StoreRetries+1, s.config.RetryBackoff, func() error {
		return s.store.Append(ctx, conf.Record)
	})
	if err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}

	slog.Info("submission stored",
		"submission_id", conf.SubmissionID,
		"code", conf.Record.Identity.Code,
		"case_id", conf.Record.Identity.CaseID,
		"total", conf.Record.Composite.Total,
	)
	return conf, nil
}

// Query reloads the store and returns the rows matching f. Every call reads
// the store again, so new submissions show up immediately.
func (s *Service) Query(ctx context.Context, sess model.Session, f model.Filter) (*dataset.Dataset, error) {
	if !sess.Docent {
		return nil, ErrForbidden
	}
	ds, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return dataset.Apply(ds, f), nil
}

func (s *Service) load(ctx context.Context) (*dataset.Dataset, error) {
	t, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	return dataset.Load(t, s.config.Location), nil
}

// Aggregate summarizes one numeric column of ds.
func (s *Service) Aggregate(ds *dataset.Dataset, column string) model.Summary {
	return dataset.Mean(ds, column)
}

// BiasFrequency counts bias tokens in ds, excluding the configured sentinel.
func (s *Service) BiasFrequency(ds *dataset.Dataset) map[string]int {
	return dataset.BiasFrequency(ds, s.config.BiasSentinel)
}

// Report bundles the count, column summaries and bias ranking for a filter.
func (s *Service) Report(ctx context.Context, sess model.Session, f model.Filter) (*model.Report, error) {
	ds, err := s.Query(ctx, sess, f)
	if err != nil {
		return nil, err
	}
	return &model.Report{
		GeneratedAt: time.Now().In(s.config.Location),
		Filter:      f,
		Count:       ds.Len(),
		Summaries:   dataset.Summarize(ds),
		Biases:      dataset.RankBiases(s.BiasFrequency(ds)),
	}, nil
}

// Options lists the filter values present in the whole store.
func (s *Service) Options(ctx context.Context, sess model.Session) (dataset.FilterOptions, error) {
	if !sess.Docent {
		return dataset.FilterOptions{}, ErrForbidden
	}
	ds, err := s.load(ctx)
	if err != nil {
		return dataset.FilterOptions{}, err
	}
	return dataset.Options(ds), nil
}

// Location returns the zone dates are interpreted in.
func (s *Service) Location() *time.Location {
	return s.config.Location
}
