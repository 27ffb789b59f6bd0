package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/directory-crawler/internal/progress"
)

// LogSink narrates the crawl through structured logs. Per-record events are
// logged at debug level to keep info output readable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		level := zapcore.InfoLevel
		msg := "progress"
		switch evt.Stage {
		case progress.StageRunStart:
			msg = "crawl started"
			fields = append(fields, zap.Int("region_index", evt.RegionIndex), zap.Int("regions", evt.RegionCount),
				zap.Int("page_index", evt.PageIndex), zap.Int("processed", evt.Processed))
		case progress.StageRegionStart:
			msg = "region started"
			fields = append(fields, zap.String("region", evt.Region), zap.Int("region_index", evt.RegionIndex),
				zap.Int("regions", evt.RegionCount), zap.Int("page_index", evt.PageIndex))
		case progress.StagePageDone:
			msg = "listing page processed"
			fields = append(fields, zap.String("region", evt.Region), zap.Int("page", evt.PageIndex+1),
				zap.Int("records", evt.Records), zap.Int("skipped", evt.Skipped), zap.Int("total", evt.Total),
				zap.String("strategy", evt.Strategy), zap.Int("processed", evt.Processed))
		case progress.StageRecordDone:
			level, msg = zapcore.DebugLevel, "record processed"
			fields = append(fields, zap.String("region", evt.Region), zap.String("record_id", evt.RecordID),
				zap.Int("processed", evt.Processed))
		case progress.StageRecordSkipped:
			level, msg = zapcore.DebugLevel, "record skipped"
			fields = append(fields, zap.String("record_id", evt.RecordID), zap.String("note", evt.Note))
		case progress.StageWait:
			level, msg = zapcore.DebugLevel, "waiting"
			fields = append(fields, zap.String("kind", string(evt.WaitKind)), zap.Duration("wait", evt.Wait))
		case progress.StageCheckpoint:
			level, msg = zapcore.DebugLevel, "checkpoint saved"
			fields = append(fields, zap.Int("region_index", evt.RegionIndex), zap.Int("page_index", evt.PageIndex),
				zap.Int("processed", evt.Processed))
		case progress.StageRegionDone:
			msg = "region completed"
			fields = append(fields, zap.String("region", evt.Region), zap.Int("records", evt.Records),
				zap.Int("pages", evt.PageIndex+1), zap.Duration("dur", evt.Dur))
		case progress.StageRunDone:
			msg = "crawl completed"
			fields = append(fields, zap.Int("processed", evt.Processed), zap.Duration("dur", evt.Dur))
		case progress.StageRunInterrupted:
			level, msg = zapcore.WarnLevel, "crawl interrupted"
			fields = append(fields, zap.String("region", evt.Region), zap.Int("page", evt.PageIndex+1),
				zap.Int("processed", evt.Processed))
		case progress.StageRunAborted:
			level, msg = zapcore.ErrorLevel, "crawl aborted"
			fields = append(fields, zap.String("region", evt.Region), zap.Int("page", evt.PageIndex+1),
				zap.Int("processed", evt.Processed), zap.String("url", evt.URL), zap.String("note", evt.Note))
		}
		if ce := s.logger.Check(level, msg); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
