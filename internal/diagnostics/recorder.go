// Package diagnostics persists evidence of blocked or failed responses.
//
// Each diagnostic is two objects: the raw body, and a ".info.txt" sidecar
// with the URL, status, timestamp, message, page number and request headers.
package diagnostics

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
)

const stampLayout = "20060102_150405"

// Recorder implements crawler.DiagnosticRecorder over a BlobStore.
type Recorder struct {
	store     crawler.BlobStore
	clock     crawler.Clock
	pageParam string
	logger    *zap.Logger

	mu   sync.Mutex
	used map[string]int
}

// NewRecorder writes diagnostics to store. pageParam names the 0-based page
// query parameter used to label files.
func NewRecorder(store crawler.BlobStore, clock crawler.Clock, pageParam string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		store:     store,
		clock:     clock,
		pageParam: pageParam,
		logger:    logger,
		used:      make(map[string]int),
	}
}

// Record implements crawler.DiagnosticRecorder and returns the body's URI.
func (r *Recorder) Record(ctx context.Context, diag crawler.Diagnostic) (string, error) {
	now := r.clock.Now()
	page := r.pageLabel(diag.URL)
	name := r.unique(Name(diag.URL, diag.Status, now.Format(stampLayout), page))

	body := diag.Body
	contentType := "text/html"
	if len(body) == 0 {
		contentType = "text/plain"
		var b bytes.Buffer
		fmt.Fprintf(&b, "No content received from %s\n", diag.URL)
		if diag.Message != "" {
			fmt.Fprintf(&b, "Error: %s\n", diag.Message)
		}
		body = b.Bytes()
	}

	uri, err := r.store.PutObject(ctx, name, contentType, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("store diagnostic body: %w", err)
	}
	if _, err := r.store.PutObject(ctx, name+".info.txt", "text/plain", bytes.NewReader(info(diag, now.Format("2006-01-02T15:04:05.000000"), page))); err != nil {
		return uri, fmt.Errorf("store diagnostic info: %w", err)
	}
	r.logger.Info("diagnostic saved",
		zap.String("uri", uri),
		zap.Int("status", diag.Status),
		zap.Int("bytes", len(diag.Body)))
	return uri, nil
}

// Name derives the artifact name from the response. Responses without a
// status are prefixed "error".
func Name(rawURL string, status int, stamp, page string) string {
	urlPath := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		urlPath = u.Path
	}
	safe := strings.ReplaceAll(urlPath, "/", "_") + "_" + page
	if status > 0 {
		return fmt.Sprintf("blocked_%d_%s_%s.html", status, stamp, safe)
	}
	return fmt.Sprintf("error_%s_%s.html", stamp, safe)
}

func (r *Recorder) pageLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "unknown"
	}
	n, err := strconv.Atoi(u.Query().Get(r.pageParam))
	if err != nil {
		return "unknown"
	}
	return "page" + strconv.Itoa(n+1)
}

func (r *Recorder) unique(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.used[name]++
	if n := r.used[name]; n > 1 {
		return strings.TrimSuffix(name, ".html") + "_" + strconv.Itoa(n) + ".html"
	}
	return name
}

func info(diag crawler.Diagnostic, stamp, page string) []byte {
	var b bytes.Buffer
	status := "Unknown"
	if diag.Status > 0 {
		status = strconv.Itoa(diag.Status)
	}
	message := diag.Message
	if message == "" {
		message = "None"
	}
	fmt.Fprintf(&b, "URL: %s\n", diag.URL)
	fmt.Fprintf(&b, "Status Code: %s\n", status)
	fmt.Fprintf(&b, "Timestamp: %s\n", stamp)
	fmt.Fprintf(&b, "Error Message: %s\n", message)
	fmt.Fprintf(&b, "Page Number: %s\n", page)
	if len(diag.RequestHeaders) > 0 {
		b.WriteString("Request Headers:\n")
		for _, key := range slices.Sorted(maps.Keys(diag.RequestHeaders)) {
			fmt.Fprintf(&b, "  %s: %s\n", key, strings.Join(diag.RequestHeaders[key], ", "))
		}
	}
	return b.Bytes()
}
