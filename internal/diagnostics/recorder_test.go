package diagnostics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/storage"
	"github.com/JakeFAU/directory-crawler/internal/storage/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var t0 = time.Date(2025, 4, 2, 13, 14, 15, 0, time.UTC)

func TestName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "blocked_403_20250402_131415__register.php_page3.html",
		Name("https://d.test/register.php?cmd=mysearch&ap=2", 403, "20250402_131415", "page3"))
	assert.Equal(t, "error_20250402_131415__register.php_unknown.html",
		Name("https://d.test/register.php?cmd=anzeige&eid=1", 0, "20250402_131415", "unknown"))
}

func TestRecordWritesBodyAndSidecar(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	rec := NewRecorder(store, fixedClock{t0}, "ap", nil)
	headers := http.Header{}
	headers.Set("User-Agent", "ua-1")
	headers.Set("Accept-Language", "de-DE")

	uri, err := rec.Record(context.Background(), crawler.Diagnostic{
		URL:            "https://d.test/register.php?cmd=mysearch&fr=x&ap=5",
		Status:         429,
		Body:           []byte("<html>slow down</html>"),
		RequestHeaders: headers,
		Message:        "rate limited",
	})
	require.NoError(t, err)

	name := "blocked_429_20250402_131415__register.php_page6.html"
	assert.Equal(t, "memory://"+name, uri)
	body, ok := store.Get(name)
	require.True(t, ok)
	assert.Equal(t, "<html>slow down</html>", string(body.Data))

	sidecar, ok := store.Get(name + ".info.txt")
	require.True(t, ok)
	assert.Equal(t, "URL: https://d.test/register.php?cmd=mysearch&fr=x&ap=5\n"+
		"Status Code: 429\n"+
		"Timestamp: 2025-04-02T13:14:15.000000\n"+
		"Error Message: rate limited\n"+
		"Page Number: page6\n"+
		"Request Headers:\n"+
		"  Accept-Language: de-DE\n"+
		"  User-Agent: ua-1\n", string(sidecar.Data))
}

func TestRecordWithoutBody(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	rec := NewRecorder(store, fixedClock{t0}, "ap", nil)

	for range 2 {
		_, err := rec.Record(context.Background(), crawler.Diagnostic{
			URL:     "https://d.test/register.php?cmd=anzeige&eid=7",
			Message: "TIMEOUT: deadline exceeded",
		})
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"error_20250402_131415__register.php_unknown.html",
		"error_20250402_131415__register.php_unknown.html.info.txt",
		"error_20250402_131415__register.php_unknown_2.html",
		"error_20250402_131415__register.php_unknown_2.html.info.txt",
	}, store.Paths())
	body, _ := store.Get("error_20250402_131415__register.php_unknown.html")
	assert.Equal(t, "No content received from https://d.test/register.php?cmd=anzeige&eid=7\nError: TIMEOUT: deadline exceeded\n", string(body.Data))
	assert.Equal(t, "text/plain", body.ContentType)
}

func TestRecordPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	store := &storage.MockBlobStore{}
	store.On("PutObject", mock.Anything, mock.Anything, "text/html", "x").Return("", errors.New("bucket gone")).Once()
	rec := NewRecorder(store, fixedClock{t0}, "ap", nil)

	_, err := rec.Record(context.Background(), crawler.Diagnostic{URL: "https://d.test/a", Status: 403, Body: []byte("x")})
	require.Error(t, err)

	store.On("PutObject", mock.Anything, mock.Anything, "text/html", "y").Return("uri://body", nil).Once()
	store.On("PutObject", mock.Anything, mock.Anything, "text/plain", mock.Anything).Return("", errors.New("sidecar")).Once()
	uri, err := rec.Record(context.Background(), crawler.Diagnostic{URL: "https://d.test/a", Status: 403, Body: []byte("y")})
	require.Error(t, err)
	assert.Equal(t, "uri://body", uri)
	store.AssertExpectations(t)
}
