// Package images downloads cover images referenced by resolved records.
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/deepghs/anime-sites/internal/httpx"
)

// DownloadError indicates a cover could not be fetched. The partial file
// has already been removed, so the next flush retries the same file.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves cover images over a shared session.
type Fetcher struct {
	session *httpx.Session
}

// NewFetcher creates a cover image fetcher.
func NewFetcher(session *httpx.Session) *Fetcher {
	return &Fetcher{session: session}
}

// Download fetches one image to dest, skipping files that already exist.
// On failure the partial file is removed before the error propagates.
func (f *Fetcher) Download(ctx context.Context, url, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		slog.Debug("Image already exists, skipping", "path", dest)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return &DownloadError{URL: url, Err: err}
	}

	resp, err := f.session.Get(ctx, url)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return &DownloadError{URL: url, Err: err}
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return &DownloadError{URL: url, Err: err}
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return &DownloadError{URL: url, Err: err}
	}

	slog.Info("Downloaded image", "url", url, "path", dest)
	return nil
}
