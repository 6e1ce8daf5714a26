package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"incident-pipeline/internal/model"
	"incident-pipeline/pkg/utils"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ------------------- Paginated Ingestion -------------------

const (
	// DefaultPageSize is the Socrata $limit used per request.
	DefaultPageSize = 1000

	// MinPageDelay bounds the request rate against the open-data portal.
	MinPageDelay = 250 * time.Millisecond
)

// ErrFetch marks a failed page request. One failed page aborts the run.
var ErrFetch = errors.New("fetch page")

// SleepFunc pauses for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// FetchStats counts what a fetcher has done so far.
type FetchStats struct {
	Pages   int
	Records int64
}

// Fetcher pages through a Socrata resource with $offset/$limit until an
// empty page comes back.
type Fetcher struct {
	Endpoint  string
	PageSize  int
	PageDelay time.Duration
	Client    *http.Client
	Sleep     SleepFunc
	Logger    *slog.Logger

	stats FetchStats
}

// NewFetcher returns a fetcher with the default page size and delay.
func NewFetcher(endpoint string) *Fetcher {
	return &Fetcher{
		Endpoint:  endpoint,
		PageSize:  DefaultPageSize,
		PageDelay: MinPageDelay,
		Client:    http.DefaultClient,
		Sleep:     utils.Sleep,
		Logger:    slog.Default(),
	}
}

// Stats returns the counters for the most recent iteration.
func (f *Fetcher) Stats() FetchStats {
	return f.stats
}

// Records yields every record in the collection in offset order. A fetch
// failure is yielded once as the error value and ends the sequence. Each
// call starts again from offset zero.
func (f *Fetcher) Records(ctx context.Context) iter.Seq2[model.SourceRecord, error] {
	return func(yield func(model.SourceRecord, error) bool) {
		f.stats = FetchStats{}
		limit := f.pageSize()
		delay := max(f.PageDelay, MinPageDelay)
		sleep := f.Sleep
		if sleep == nil {
			sleep = utils.Sleep
		}

		for offset := 0; ; offset += limit {
			f.logger().Info("records processed", "count", offset, "endpoint", f.Endpoint)

			page, err := f.fetchPage(ctx, offset, limit)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}

			for _, rec := range page {
				f.stats.Records++
				if !yield(rec, nil) {
					return
				}
			}

			if err := sleep(ctx, delay); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// fetchPage requests [offset, offset+limit) and decodes the JSON array.
func (f *Fetcher) fetchPage(ctx context.Context, offset, limit int) ([]model.SourceRecord, error) {
	pageURL, err := f.pageURL(offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	f.stats.Pages++
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w at offset %d: %w", ErrFetch, offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w at offset %d: unexpected status %s", ErrFetch, offset, resp.Status)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var page []model.SourceRecord
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("%w at offset %d: decode JSON: %w", ErrFetch, offset, err)
	}
	return page, nil
}

// pageURL appends $offset and $limit, keeping any query already on the
// endpoint.
func (f *Fetcher) pageURL(offset, limit int) (string, error) {
	u, err := url.Parse(f.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("$offset", strconv.Itoa(offset))
	q.Set("$limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) pageSize() int {
	if f.PageSize <= 0 {
		return DefaultPageSize
	}
	return f.PageSize
}

func (f *Fetcher) client() *http.Client {
	if f.Client == nil {
		return http.DefaultClient
	}
	return f.Client
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}
