// Package fetch implements the fetcher port: a uniform download
// contract the core asks for local paths through before committing
// install/reinstall steps. HTTPFetcher is the reference
// implementation, downloading (or copying, for file:// URLs, to keep
// tests off the network) enqueued items concurrently via errgroup.
package fetch

import (
	"compress/gzip"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/packagecore/pkgcore/iface"
	"github.com/packagecore/pkgcore/perrors"
)

// Status is an enqueued item's terminal state.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

// Options configures one Enqueue call: optional checksums and whether
// the fetched resource should be decompressed after verification.
type Options struct {
	MD5        string
	SHA1       string
	UncompMD5  string
	Uncompress bool
}

// Item is a single enqueued fetch, queryable after Run returns.
type Item interface {
	Status() Status
	URL() string
	FailedReason() error
	TargetPath() string
}

// Fetcher is the port the core consumes: reset the queue, enqueue URLs
// with optional checksums/decompression, then run them.
type Fetcher interface {
	Reset()
	Enqueue(rawURL string, opts Options) Item
	Run(ctx context.Context, ui iface.Interface) error
}

type item struct {
	url        string
	opts       Options
	targetPath string

	mu     sync.Mutex
	status Status
	err    error
}

func (it *item) Status() Status {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.status
}
func (it *item) URL() string { return it.url }
func (it *item) FailedReason() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.err
}
func (it *item) TargetPath() string { return it.targetPath }

func (it *item) finish(err error) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if err != nil {
		it.status = StatusFailed
		it.err = err
		return
	}
	it.status = StatusSucceeded
}

// HTTPFetcher is the reference Fetcher: it downloads http(s):// URLs
// with *http.Client and reads file:// URLs directly (so tests never
// touch the network), writing each into Dir.
type HTTPFetcher struct {
	Dir         string
	Client      *http.Client
	Concurrency int

	items []*item
}

// NewHTTPFetcher returns a fetcher writing downloaded files under dir.
func NewHTTPFetcher(dir string) *HTTPFetcher {
	return &HTTPFetcher{Dir: dir, Client: http.DefaultClient, Concurrency: 4}
}

func (f *HTTPFetcher) Reset() { f.items = nil }

func (f *HTTPFetcher) Enqueue(rawURL string, opts Options) Item {
	it := &item{url: rawURL, opts: opts, targetPath: f.targetPathFor(rawURL)}
	f.items = append(f.items, it)
	return it
}

func (f *HTTPFetcher) targetPathFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	name := filepath.Base(rawURL)
	if err == nil && u.Path != "" {
		name = filepath.Base(u.Path)
	}
	return filepath.Join(f.Dir, name)
}

// Run fetches every enqueued item, at most Concurrency at a time,
// reporting advisory progress through ui and aggregating any
// per-item FetchError.
func (f *HTTPFetcher) Run(ctx context.Context, ui iface.Interface) error {
	if f.Dir != "" {
		if err := os.MkdirAll(f.Dir, 0o755); err != nil {
			return perrors.NewFetchError(f.Dir, err)
		}
	}

	conc := f.Concurrency
	if conc <= 0 {
		conc = 4
	}
	sem := make(chan struct{}, conc)

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var errs []error

	for _, it := range f.items {
		it := it
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			var progress iface.Progress
			if ui != nil {
				progress = ui.Progress(it.url, true)
			}
			err := f.fetchOne(gctx, it, progress)
			it.finish(err)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				if ui != nil {
					ui.Warning(err.Error())
				}
			}
			if progress != nil {
				progress.Done()
			}
			return nil // per-item failures are aggregated, not fatal to the group
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if len(errs) > 0 {
		return aggregateFetchErrors(errs, len(f.items))
	}
	return nil
}

func aggregateFetchErrors(errs []error, total int) error {
	msg := fmt.Sprintf("%d of %d fetches failed", len(errs), total)
	return perrors.NewFetchError("run", fmt.Errorf("%s: %w", msg, errs[0]))
}

func (f *HTTPFetcher) fetchOne(ctx context.Context, it *item, progress iface.Progress) error {
	r, size, err := f.open(ctx, it.url)
	if err != nil {
		return perrors.NewFetchError(it.url, err)
	}
	defer r.Close()
	if progress != nil && size > 0 {
		progress.SetTotal(size)
	}

	tmp := it.targetPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return perrors.NewFetchError(it.url, err)
	}

	md5h, sha1h := md5.New(), sha1.New()
	w := io.MultiWriter(out, md5h, sha1h)

	if _, err := copyWithProgress(w, r, progress); err != nil {
		out.Close()
		os.Remove(tmp)
		return perrors.NewFetchError(it.url, err)
	}
	out.Close()

	if err := verify("md5", it.opts.MD5, md5h); err != nil {
		os.Remove(tmp)
		return perrors.NewFetchError(it.url, err)
	}
	if err := verify("sha1", it.opts.SHA1, sha1h); err != nil {
		os.Remove(tmp)
		return perrors.NewFetchError(it.url, err)
	}

	if it.opts.Uncompress {
		if err := decompress(tmp, it.targetPath, it.opts.UncompMD5); err != nil {
			os.Remove(tmp)
			return perrors.NewFetchError(it.url, err)
		}
		return nil
	}

	return os.Rename(tmp, it.targetPath)
}

func copyWithProgress(w io.Writer, r io.Reader, progress iface.Progress) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			if progress != nil {
				progress.Add(int64(n))
			}
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func verify(kind, want string, h hash.Hash) error {
	if want == "" {
		return nil
	}
	got := hex.EncodeToString(h.Sum(nil))
	if got != want {
		return fmt.Errorf("%s checksum mismatch: want %s, got %s", kind, want, got)
	}
	return nil
}

// decompress gunzips src into dst, verifying the uncompressed MD5 when
// uncompMD5 is non-empty.
func decompress(src, dst, uncompMD5 string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return err
	}
	defer zr.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	h := md5.New()
	w := io.MultiWriter(out, h)
	if _, err := io.Copy(w, zr); err != nil {
		return err
	}
	return verify("md5", uncompMD5, h)
}

// open returns a reader for rawURL: file:// and bare local paths are
// read directly (so tests avoid the network), everything else goes
// through Client.Get. The second return value is the content length
// when known, else 0.
func (f *HTTPFetcher) open(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	u, err := url.Parse(rawURL)
	if err == nil && (u.Scheme == "file" || u.Scheme == "") {
		path := rawURL
		if u.Scheme == "file" {
			path = u.Path
		}
		fh, err := os.Open(path)
		if err != nil {
			return nil, 0, err
		}
		if fi, err := fh.Stat(); err == nil {
			return fh, fi.Size(), nil
		}
		return fh, 0, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, resp.ContentLength, nil
}
