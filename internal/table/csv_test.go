package table

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

var (
	berlin = crawler.Region{ID: "Berlin", DisplayName: "berlin"}
	bayern = crawler.Region{ID: "Bayern", DisplayName: "bayern"}
	at     = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
)

func record(id, name string) crawler.Record {
	return crawler.Record{ID: crawler.RecordID(id), Region: "berlin", Name: name, Industry: "Bau\nHandel", ScrapedAt: at}
}

func TestCSVSinkMergesById(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	sink := NewCSVSink(fsys, "out", true, "", nil)
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, berlin, []crawler.Record{record("1", "A"), record("2", "B")}))
	require.NoError(t, sink.Write(ctx, berlin, []crawler.Record{record("2", "B2"), record("3", "C")}))
	require.NoError(t, sink.Write(ctx, berlin, nil))

	got, err := sink.Records(berlin)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B2", "C"}, []string{got[0].Name, got[1].Name, got[2].Name})
	assert.Equal(t, record("1", "A"), got[0], "multi-line fields survive")

	assert.Equal(t, "out/berlin.csv", sink.PathFor(berlin))
	raw, err := afero.ReadFile(fsys, "out/berlin.csv")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "company_id,state,name,street")
	assert.Contains(t, string(raw), "2025-01-02 03:04:05")
}

func TestCSVSinkCombinedFile(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	sink := NewCSVSink(fsys, ".", false, "all_companies.csv", nil)
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, berlin, []crawler.Record{record("1", "A")}))
	require.NoError(t, sink.Write(ctx, bayern, []crawler.Record{record("9", "Z")}))

	got, err := sink.Records(bayern)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "all_companies.csv", sink.PathFor(berlin))
}

func TestCSVSinkReadsForeignColumnOrder(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "berlin.csv", []byte("name,company_id,extra\nOld,5,x\n"), 0o644))

	sink := NewCSVSink(fsys, "", true, "", nil)
	require.NoError(t, sink.Write(context.Background(), berlin, []crawler.Record{record("6", "New")}))

	got, err := sink.Records(berlin)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, crawler.RecordID("5"), got[0].ID)
	assert.Equal(t, "Old", got[0].Name)
	assert.True(t, got[0].ScrapedAt.IsZero())
}

func TestFileName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "thüringen.csv", FileName(crawler.Region{ID: "Th%FCringen"}))
	assert.Equal(t, "new_region.csv", FileName(crawler.Region{ID: "x", DisplayName: "New Region"}))
}

type failingSink struct{ err error }

func (f failingSink) Write(context.Context, crawler.Region, []crawler.Record) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	csvSink := NewCSVSink(fsys, "", true, "", nil)
	boom := errors.New("boom")

	err := Multi{failingSink{boom}, csvSink}.Write(context.Background(), berlin, []crawler.Record{record("1", "A")})
	require.ErrorIs(t, err, boom)

	got, err := csvSink.Records(berlin)
	require.NoError(t, err)
	assert.Len(t, got, 1, "later sinks still run")

	require.NoError(t, Multi{csvSink}.Write(context.Background(), berlin, nil))
}

func TestMirrorSwallowsFailures(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	csvSink := NewCSVSink(fsys, "", true, "", nil)
	core, logs := observer.New(zap.WarnLevel)
	mirror := &Mirror{Sink: failingSink{errors.New("connection refused")}, Name: "postgres", Logger: zap.New(core)}

	err := Multi{csvSink, mirror}.Write(context.Background(), berlin, []crawler.Record{record("1", "A")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), mirror.Failures())
	entries := logs.FilterMessage("record mirror write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "postgres", entries[0].ContextMap()["mirror"])

	got, err := csvSink.Records(berlin)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
