package table

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

// Multi fans a batch out to several sinks. Every sink is attempted; the
// errors are joined.
type Multi []crawler.TableSink

// Write implements crawler.TableSink.
func (m Multi) Write(ctx context.Context, region crawler.Region, records []crawler.Record) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, region, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Mirror wraps a secondary sink whose failures must not stop the crawl. Errors
// are logged and counted; the primary sink remains the record of truth.
type Mirror struct {
	Sink   crawler.TableSink
	Name   string
	Logger *zap.Logger

	failures atomic.Int64
}

// Write implements crawler.TableSink and never fails.
func (m *Mirror) Write(ctx context.Context, region crawler.Region, records []crawler.Record) error {
	if err := m.Sink.Write(ctx, region, records); err != nil {
		m.failures.Add(1)
		logger := m.Logger
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Warn("record mirror write failed",
			zap.String("mirror", m.Name),
			zap.String("region", region.ID),
			zap.Int("records", len(records)),
			zap.Error(err))
	}
	return nil
}

// Failures reports how many batches the mirror dropped.
func (m *Mirror) Failures() int64 {
	return m.failures.Load()
}
