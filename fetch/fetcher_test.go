package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pgr-report-service/config"
)

type fakeStore struct {
	objects map[string][]byte
	failing map[string]bool
}

func (s *fakeStore) key(bucket, object string) string { return bucket + "/" + object }

func (s *fakeStore) Exists(_ context.Context, bucket, object string) (bool, error) {
	k := s.key(bucket, object)
	if s.failing[k] {
		return false, errors.New("boom")
	}
	_, ok := s.objects[k]
	return ok, nil
}

func (s *fakeStore) Download(_ context.Context, bucket, object string) ([]byte, error) {
	k := s.key(bucket, object)
	if s.failing[k] {
		return nil, errors.New("boom")
	}
	d, ok := s.objects[k]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Bucket:            "default-bucket",
		MaxImageBytes:     10 * 1024 * 1024,
		AllowedImageHosts: []string{"127.0.0.1", "storage.googleapis.com"},
		HTTPTimeout:       5 * time.Second,
	}
}

// testJPEG encodes a small solid image for endpoints that must serve a
// decodable payload.
func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encoding test JPEG: %v", err)
	}
	return buf.Bytes()
}

func TestFetchBlobBatchPreservesOrderAndLength(t *testing.T) {
	store := &fakeStore{
		objects: map[string][]byte{
			"default-bucket/a.jpg": []byte("AAA"),
			"default-bucket/c.jpg": []byte("CCC"),
		},
		failing: map[string]bool{"default-bucket/d.jpg": true},
	}
	f := New(store, testConfig())

	paths := []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg"}
	results := f.FetchBlobBatch(context.Background(), paths)

	if len(results) != len(paths) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(paths))
	}
	if string(results[0]) != "AAA" {
		t.Errorf("results[0] = %q, want AAA", results[0])
	}
	if results[1] != nil {
		t.Errorf("missing object should be nil, got %q", results[1])
	}
	if string(results[2]) != "CCC" {
		t.Errorf("results[2] = %q, want CCC", results[2])
	}
	if results[3] != nil {
		t.Errorf("failing object should be nil, got %q", results[3])
	}
}

func TestFetchBlobBatchLargeInputChunks(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{}}
	paths := make([]string, 250)
	for i := range paths {
		paths[i] = fmt.Sprintf("img-%d.jpg", i)
		if i%2 == 0 {
			store.objects[fmt.Sprintf("default-bucket/img-%d.jpg", i)] = []byte{byte(i)}
		}
	}
	f := New(store, testConfig())

	results := f.FetchBlobBatch(context.Background(), paths)
	if len(results) != len(paths) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(paths))
	}
	for i, r := range results {
		if i%2 == 0 {
			if len(r) != 1 || r[0] != byte(i) {
				t.Fatalf("results[%d] = %v, want [%d]", i, r, byte(i))
			}
		} else if r != nil {
			t.Fatalf("results[%d] should be nil", i)
		}
	}
}

func TestFetchTargetsGroupsByBucketKeepingOrder(t *testing.T) {
	store := &fakeStore{objects: map[string][]byte{
		"b1/x.jpg": []byte("X"),
		"b2/y.jpg": []byte("Y"),
		"b1/z.jpg": []byte("Z"),
	}}
	f := New(store, testConfig())

	targets := []Target{
		{Bucket: "b1", Object: "x.jpg"},
		{Bucket: "b2", Object: "y.jpg"},
		{Bucket: "b2", Object: "missing.jpg"},
		{Bucket: "b1", Object: "z.jpg"},
	}
	results := f.FetchTargets(context.Background(), targets)

	want := []string{"X", "Y", "", "Z"}
	if len(results) != len(targets) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(targets))
	}
	for i, w := range want {
		if w == "" {
			if results[i] != nil {
				t.Errorf("results[%d] = %q, want nil", i, results[i])
			}
		} else if string(results[i]) != w {
			t.Errorf("results[%d] = %q, want %q", i, results[i], w)
		}
	}
}

func TestFetchURLEnforcesByteCap(t *testing.T) {
	payload := testJPEG(t, 64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxImageBytes = int64(len(payload)) - 1
	f := New(&fakeStore{}, cfg)

	if got := f.FetchURL(context.Background(), srv.URL+"/img.jpg"); got != nil {
		t.Errorf("oversized response must be discarded, got %d bytes", len(got))
	}

	cfg.MaxImageBytes = int64(len(payload))
	f = New(&fakeStore{}, cfg)
	got := f.FetchURL(context.Background(), srv.URL+"/img.jpg")
	if !bytes.Equal(got, payload) {
		t.Errorf("response within the cap should round-trip, got %d bytes", len(got))
	}
}

func TestFetchURLRejectsNonImagePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("this is not an image"))
	}))
	defer srv.Close()

	f := New(&fakeStore{}, testConfig())
	if got := f.FetchURL(context.Background(), srv.URL+"/fake.jpg"); got != nil {
		t.Errorf("non-image payload must be rejected")
	}
}

func TestFetchURLHostAllowList(t *testing.T) {
	f := New(&fakeStore{}, testConfig())

	if got := f.FetchURL(context.Background(), "https://evil.example.com/img.jpg"); got != nil {
		t.Errorf("host outside the allow-list must be rejected")
	}

	if !f.hostAllowed("sub.storage.googleapis.com") {
		t.Errorf("subdomain of an allowed host should match")
	}
	if f.hostAllowed("storage.googleapis.com.evil.com") {
		t.Errorf("host merely containing an allowed host must not match")
	}
	if f.hostAllowed("notstorage.googleapis.com") {
		t.Errorf("lookalike host must not match")
	}
}

func TestFetchURLBatchPreservesOrder(t *testing.T) {
	payload := testJPEG(t, 32, 32)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	f := New(&fakeStore{}, testConfig())
	urls := []string{srv.URL + "/a", srv.URL + "/bad", srv.URL + "/c"}
	results := f.FetchURLBatch(context.Background(), urls)

	if len(results) != len(urls) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(urls))
	}
	if !bytes.Equal(results[0], payload) || !bytes.Equal(results[2], payload) {
		t.Errorf("successful downloads must land at their input index")
	}
	if results[1] != nil {
		t.Errorf("failed download must be nil, got %d bytes", len(results[1]))
	}
}

func TestFetchURLBadURL(t *testing.T) {
	f := New(&fakeStore{}, testConfig())
	if got := f.FetchURL(context.Background(), "://not-a-url"); got != nil {
		t.Errorf("unparseable URL must be rejected")
	}
}
