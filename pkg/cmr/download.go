package cmr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	internalhttp "github.com/example/go-maap/internal/http"
)

// FileName derives the local file name of a granule reference from the last
// path element of its URL.
func FileName(ref GranuleReference) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("cmr: parse granule url: %w", err)
	}
	base := path.Base(u.Path)
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("cmr: could not determine file name for %q", ref)
	}
	return base, nil
}

// Download fetches one granule to destPath. https:// references are fetched
// through the client's HTTP session and s3:// references through the AWS SDK
// with temporary credentials.
func (c *Client) Download(ctx context.Context, ref GranuleReference, destPath string, opts ...DownloadOption) (err error) {
	if c == nil {
		return ErrNilClient
	}
	if ref == "" {
		return ErrMissingDownloadURL
	}
	if destPath == "" {
		return errors.New("cmr: destination path required")
	}
	cfg := newDownloadConfig(opts)

	tmpPath := destPath + ".part"
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("cmr: create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	meta := FileProgress{Granule: ref, FileName: filepath.Base(destPath)}
	if strings.HasPrefix(ref, "s3://") {
		var n int64
		n, err = c.downloadS3(ctx, ref, out)
		if err != nil {
			return err
		}
		if cfg.progress != nil {
			meta.Downloaded, meta.Total = n, n
			cfg.progress(meta)
		}
	} else if err = c.downloadHTTP(ctx, ref, newProgressWriter(out, cfg.progress, meta)); err != nil {
		return err
	}

	if err = out.Sync(); err != nil {
		return fmt.Errorf("cmr: sync file: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("cmr: close file: %w", err)
	}
	if err = os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("cmr: rename temp file: %w", err)
	}
	return nil
}

// DownloadAll fetches every distinct granule into destDir, naming each file
// after the last element of its URL. A granule whose file name is already
// taken by an earlier one in the batch is skipped and reported. Failures are
// collected into a BatchError.
func (c *Client) DownloadAll(ctx context.Context, refs []GranuleReference, destDir string, opts ...DownloadOption) error {
	if c == nil {
		return ErrNilClient
	}
	if len(refs) == 0 {
		return ErrMissingDownloadURL
	}
	if destDir == "" {
		return errors.New("cmr: destination directory required")
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("cmr: create destination directory: %w", err)
	}
	cfg := newDownloadConfig(opts)

	results := make(chan error, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)

	seen := make(map[string]struct{}, len(refs))
	names := make(map[string]string, len(refs))
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		name, err := FileName(ref)
		if err != nil {
			results <- err
			continue
		}
		// The first ref keeps the file; later ones would overwrite it.
		if first, ok := names[name]; ok {
			results <- fmt.Errorf("%s: %w: %s also maps to %s", ref, ErrDuplicateFileName, first, name)
			continue
		}
		names[name] = ref

		g.Go(func() error {
			if err := c.Download(gctx, ref, filepath.Join(destDir, name), opts...); err != nil {
				results <- fmt.Errorf("%s: %w", ref, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	var errs []error
	for err := range results {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return BatchError{Errors: errs}
	}
	return nil
}

func (c *Client) downloadHTTP(ctx context.Context, ref GranuleReference, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return &TransportError{Endpoint: ref, Err: err}
	}
	resp, err := c.send(req)
	if err != nil {
		return &TransportError{Endpoint: ref, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &ResponseError{Endpoint: ref, StatusCode: resp.StatusCode, Body: internalhttp.ReadErrorBody(resp)}
	}

	if ct := strings.ToLower(resp.Header.Get("Content-Type")); strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml") {
		preview := internalhttp.ReadErrorBody(resp)
		return fmt.Errorf("cmr: unexpected HTML response while downloading %s: %s", ref, strings.TrimSpace(preview))
	}

	if pw, ok := w.(*progressWriter); ok && resp.ContentLength > 0 {
		pw.meta.Total = resp.ContentLength
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("cmr: write file: %w", err)
	}
	return nil
}

type progressWriter struct {
	dst      io.Writer
	progress ProgressFunc
	meta     FileProgress
}

func newProgressWriter(dst io.Writer, fn ProgressFunc, meta FileProgress) *progressWriter {
	return &progressWriter{dst: dst, progress: fn, meta: meta}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	n, err := w.dst.Write(p)
	if n > 0 {
		w.meta.Downloaded += int64(n)
		if w.progress != nil {
			w.progress(w.meta)
		}
	}
	return n, err
}
