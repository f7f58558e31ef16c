package fetch

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"net/url"
	"strings"

	// Formats the fetch layer must be able to validate.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	"pgr-report-service/config"
	"pgr-report-service/metrics"
	"pgr-report-service/storage"
)

// batchSize bounds how many storage downloads are in flight per chunk.
const batchSize = 100

// Fetcher retrieves image bytes from the blob store and over HTTP. Every
// failure is logged and yields a nil entry; nothing escalates past a fetch.
type Fetcher struct {
	store         storage.BlobStore
	defaultBucket string
	client        *http.Client
	maxBytes      int64
	allowedHosts  []string
}

// New builds a Fetcher around the process-scoped blob store and one shared
// HTTP client with a fixed timeout.
func New(store storage.BlobStore, cfg *config.Config) *Fetcher {
	return &Fetcher{
		store:         store,
		defaultBucket: cfg.Bucket,
		client:        &http.Client{Timeout: cfg.HTTPTimeout},
		maxBytes:      cfg.MaxImageBytes,
		allowedHosts:  cfg.AllowedImageHosts,
	}
}

// FetchBlob fetches one object from the default bucket, nil when absent.
func (f *Fetcher) FetchBlob(ctx context.Context, path string) []byte {
	return f.fetchObject(ctx, f.defaultBucket, path, "blob")
}

// FetchBlobBatch fetches many default-bucket objects, chunked at batchSize.
// The result has the same length and order as paths; failures are nil.
func (f *Fetcher) FetchBlobBatch(ctx context.Context, paths []string) [][]byte {
	results := make([][]byte, len(paths))
	for start := 0; start < len(paths); start += batchSize {
		end := start + batchSize
		if end > len(paths) {
			end = len(paths)
		}
		chunk := fanOut(paths[start:end], batchSize, func(_ int, p string) []byte {
			return f.fetchObject(ctx, f.defaultBucket, p, "blob")
		})
		copy(results[start:end], chunk)
	}
	return results
}

// FetchTargets fetches (bucket, object) pairs, grouped by bucket, keeping
// input order via index mapping.
func (f *Fetcher) FetchTargets(ctx context.Context, targets []Target) [][]byte {
	results := make([][]byte, len(targets))
	if len(targets) == 0 {
		return results
	}
	byBucket := make(map[string][]int)
	for i, t := range targets {
		byBucket[t.Bucket] = append(byBucket[t.Bucket], i)
	}
	for bucket, idxs := range byBucket {
		g := new(errgroup.Group)
		g.SetLimit(batchSize)
		for _, i := range idxs {
			i := i
			g.Go(func() error {
				results[i] = f.fetchObject(ctx, bucket, targets[i].Object, "gcs_url")
				return nil
			})
		}
		g.Wait()
	}
	return results
}

// FetchURL downloads one image over HTTP with a host allow-list and a hard
// byte cap, validating that the payload decodes as an image.
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string) []byte {
	u, err := url.Parse(rawURL)
	if err != nil {
		log.Warnf("Invalid image URL %q: %v", rawURL, err)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}
	if !f.hostAllowed(u.Hostname()) {
		log.Warnf("Host not allowed for image download: %s", u.Hostname())
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		log.Warnf("Building request for %s: %v", rawURL, err)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}
	resp, err := f.client.Do(req)
	if err != nil {
		log.Warnf("Downloading %s: %v", rawURL, err)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warnf("Downloading %s: unexpected status %s", rawURL, resp.Status)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}

	// Read at most one byte past the cap so oversize is detectable without
	// buffering the whole body.
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		log.Warnf("Reading body of %s: %v", rawURL, err)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}
	if n > f.maxBytes {
		log.Warnf("Image at %s exceeds the %d byte cap, discarded", rawURL, f.maxBytes)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}

	data := buf.Bytes()
	// Some servers serve images as application/octet-stream; trust the
	// bytes, not the content type.
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		log.Warnf("Download from %s is not a decodable image: %v", rawURL, err)
		metrics.ImagesFetchedTotal.WithLabelValues("http", "error").Inc()
		return nil
	}
	metrics.ImagesFetchedTotal.WithLabelValues("http", "ok").Inc()
	return data
}

// FetchURLBatch fans out one task per URL with no concurrency limit,
// preserving input order.
func (f *Fetcher) FetchURLBatch(ctx context.Context, urls []string) [][]byte {
	return fanOut(urls, 0, func(_ int, u string) []byte {
		return f.FetchURL(ctx, u)
	})
}

func (f *Fetcher) fetchObject(ctx context.Context, bucket, object, source string) []byte {
	ok, err := f.store.Exists(ctx, bucket, object)
	if err != nil {
		log.Warnf("Checking gs://%s/%s: %v", bucket, object, err)
		metrics.ImagesFetchedTotal.WithLabelValues(source, "error").Inc()
		return nil
	}
	if !ok {
		log.Warnf("Image not found in GCS: gs://%s/%s", bucket, object)
		metrics.ImagesFetchedTotal.WithLabelValues(source, "miss").Inc()
		return nil
	}
	data, err := f.store.Download(ctx, bucket, object)
	if err != nil {
		log.Warnf("Downloading gs://%s/%s: %v", bucket, object, err)
		metrics.ImagesFetchedTotal.WithLabelValues(source, "error").Inc()
		return nil
	}
	metrics.ImagesFetchedTotal.WithLabelValues(source, "ok").Inc()
	return data
}

func (f *Fetcher) hostAllowed(host string) bool {
	if host == "" {
		return false
	}
	for _, h := range f.allowedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// fanOut runs fn for every item on its own goroutine, at most limit at a
// time (limit <= 0 means unbounded), collecting results into a pre-sized
// slice so input order survives reordered completions.
func fanOut[T any](items []T, limit int, fn func(i int, item T) []byte) [][]byte {
	results := make([][]byte, len(items))
	if len(items) == 0 {
		return results
	}
	g := new(errgroup.Group)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("Fetch task %d panicked: %v", i, r)
				}
			}()
			results[i] = fn(i, item)
			return nil
		})
	}
	g.Wait()
	return results
}
