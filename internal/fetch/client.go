package fetch

import (
	"net/http"
	"time"

	"geodata-ingest/internal/common/logging"
)

// Option is a function that modifies the Fetcher configuration
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client, primarily for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithTimeout sets an overall request timeout covering the full body read.
// Downloads are multi-gigabyte, so the defaults only bound the response
// header wait; use this when a hard ceiling is wanted.
func WithTimeout(timeout time.Duration) Option {
	return func(f *Fetcher) {
		f.client.Timeout = timeout
	}
}

// WithLogger sets the logger used for progress reporting.
func WithLogger(log logging.Logger) Option {
	return func(f *Fetcher) {
		f.log = log
	}
}

func defaultClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}
