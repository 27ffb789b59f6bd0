package sinks

import (
	"context"
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/JakeFAU/directory-crawler/internal/progress"
)

// BarSink draws one terminal progress bar per region. The bar's maximum is the
// entry count the listing announces; until it is known the bar spins.
type BarSink struct {
	out    io.Writer
	bar    *progressbar.ProgressBar
	region string
}

// NewBarSink draws to out.
func NewBarSink(out io.Writer) *BarSink {
	return &BarSink{out: out}
}

// Consume advances the bar for processed and skipped records.
func (s *BarSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRegionStart:
			s.finish()
			s.region = evt.Region
			s.bar = newBar(s.out, -1, fmt.Sprintf("[%d/%d] %s", evt.RegionIndex+1, evt.RegionCount, evt.Region))
		case progress.StagePageDone:
			if s.bar == nil {
				continue
			}
			if evt.Total > 0 && int64(evt.Total) != s.bar.GetMax64() {
				s.bar.ChangeMax(evt.Total)
			}
			if evt.Skipped > 0 {
				_ = s.bar.Add(evt.Skipped)
			}
		case progress.StageRecordDone:
			if s.bar != nil {
				_ = s.bar.Add(1)
			}
		case progress.StageRegionDone, progress.StageRunDone, progress.StageRunInterrupted, progress.StageRunAborted:
			s.finish()
		}
	}
	return nil
}

// Current reports the bar's region and position.
func (s *BarSink) Current() (string, int64) {
	if s.bar == nil {
		return s.region, 0
	}
	return s.region, s.bar.State().CurrentNum
}

// Close finishes any open bar.
func (s *BarSink) Close(context.Context) error {
	s.finish()
	return nil
}

func (s *BarSink) finish() {
	if s.bar == nil {
		return
	}
	_ = s.bar.Finish()
	_, _ = fmt.Fprintln(s.out)
	s.bar = nil
}

func newBar(out io.Writer, max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
