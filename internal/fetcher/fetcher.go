// Package fetcher downloads bulk source files and streams CSV and JSON
// records out of them.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote files.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only if its ETag differs from etag.
	// Returns (body, newETag, changed, error). If not changed, body is nil.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
