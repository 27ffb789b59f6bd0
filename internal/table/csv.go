// Package table exports parsed records.
package table

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/fsutil"
)

// Columns is the CSV header, one column per Record field.
var Columns = []string{
	"company_id", "state", "name", "street", "zipcode", "city", "phone", "fax",
	"mobile", "email", "website", "contact_person", "products_info", "industry", "scrape_date",
}

const scrapeDateLayout = "2006-01-02 15:04:05"

// CSVSink implements crawler.TableSink. Each write merges the batch into the
// existing file by company id and replaces the file atomically.
type CSVSink struct {
	mu        sync.Mutex
	fs        afero.Fs
	dir       string
	perRegion bool
	combined  string
	logger    *zap.Logger
}

// NewCSVSink writes one file per region under dir, or a single combined file
// when perRegion is false.
func NewCSVSink(fsys afero.Fs, dir string, perRegion bool, combined string, logger *zap.Logger) *CSVSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSink{fs: fsys, dir: dir, perRegion: perRegion, combined: combined, logger: logger}
}

// PathFor returns the file a region's records go to.
func (s *CSVSink) PathFor(region crawler.Region) string {
	if !s.perRegion {
		return filepath.Join(s.dir, s.combined)
	}
	return filepath.Join(s.dir, FileName(region))
}

// FileName derives a region's CSV name from its display name.
func FileName(region crawler.Region) string {
	name := strings.NewReplacer("%FC", "ü", "%C3%BC", "ü", " ", "_").Replace(region.Name())
	return strings.ToLower(name) + ".csv"
}

// Write implements crawler.TableSink.
func (s *CSVSink) Write(_ context.Context, region crawler.Region, records []crawler.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.PathFor(region)
	existing, err := s.read(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", crawler.ErrPersistence, path, err)
	}
	rows := merge(existing, records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	if err := fsutil.WriteAtomic(s.fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrPersistence, err)
	}
	s.logger.Debug("table flushed",
		zap.String("path", path),
		zap.Int("batch", len(records)),
		zap.Int("rows", len(rows)))
	return nil
}

// Records returns the rows stored for region.
func (s *CSVSink) Records(region crawler.Region) ([]crawler.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.read(s.PathFor(region))
	if err != nil {
		return nil, err
	}
	out := make([]crawler.Record, len(rows))
	for i, row := range rows {
		out[i] = fromRow(row)
	}
	return out, nil
}

// read loads the data rows of path, re-ordered to Columns. Unknown columns
// are dropped and missing ones left empty.
func (s *CSVSink) read(path string) ([][]string, error) {
	f, err := s.fs.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.TrimSpace(h)] = i
	}
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		row := make([]string, len(Columns))
		for i, col := range Columns {
			if j, ok := index[col]; ok && j < len(rec) {
				row[i] = rec[j]
			}
		}
		rows = append(rows, row)
	}
}

// merge keeps existing row order, replaces rows whose id reappears and
// appends new ids in batch order.
func merge(existing [][]string, records []crawler.Record) [][]string {
	pos := make(map[string]int, len(existing))
	for i, row := range existing {
		pos[row[0]] = i
	}
	for _, rec := range records {
		row := toRow(rec)
		if i, ok := pos[row[0]]; ok {
			existing[i] = row
			continue
		}
		pos[row[0]] = len(existing)
		existing = append(existing, row)
	}
	return existing
}

func toRow(r crawler.Record) []string {
	scraped := ""
	if !r.ScrapedAt.IsZero() {
		scraped = r.ScrapedAt.Format(scrapeDateLayout)
	}
	return []string{
		string(r.ID), r.Region, r.Name, r.Street, r.Zipcode, r.City, r.Phone, r.Fax,
		r.Mobile, r.Email, r.Website, r.ContactPerson, r.ProductsInfo, r.Industry, scraped,
	}
}

func fromRow(row []string) crawler.Record {
	rec := crawler.Record{
		ID: crawler.RecordID(row[0]), Region: row[1], Name: row[2], Street: row[3],
		Zipcode: row[4], City: row[5], Phone: row[6], Fax: row[7], Mobile: row[8],
		Email: row[9], Website: row[10], ContactPerson: row[11], ProductsInfo: row[12],
		Industry: row[13],
	}
	if t, err := time.Parse(scrapeDateLayout, row[14]); err == nil {
		rec.ScrapedAt = t
	}
	return rec
}
