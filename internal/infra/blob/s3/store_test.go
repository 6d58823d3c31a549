package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"immobilog/internal/blob/core"
)

// fakeS3 serves the subset of the S3 REST API the store uses: HEAD, GET, PUT,
// DELETE and ListObjectsV2 with two-page pagination.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	puts    int
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string]fakeObject)} }

func respond(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body)), Header: header}
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	q := req.URL.Query()
	if req.Method == http.MethodGet && q.Get("list-type") == "2" {
		return f.list(q.Get("prefix"), q.Get("continuation-token")), nil
	}
	switch req.Method {
	case http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "", nil), nil
		}
		return respond(http.StatusOK, "", f.headers(obj)), nil
	case http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(http.StatusNotFound, "<Error><Code>NoSuchKey</Code><Message>missing</Message></Error>",
				http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return respond(http.StatusOK, string(obj.body), f.headers(obj)), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if dec, ok := decodeChunked(body); ok {
			body = dec
		}
		md := map[string]string{}
		for h, v := range req.Header {
			if name, ok := strings.CutPrefix(strings.ToLower(h), "x-amz-meta-"); ok {
				md[name] = v[0]
			}
		}
		f.objects[key] = fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: md}
		f.puts++
		h := http.Header{}
		h.Set("ETag", `"etag"`)
		return respond(http.StatusOK, "", h), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return respond(http.StatusNoContent, "", nil), nil
	}
	return respond(http.StatusNotImplemented, "", nil), nil
}

func (f *fakeS3) headers(obj fakeObject) http.Header {
	h := http.Header{}
	h.Set("Content-Length", strconv.Itoa(len(obj.body)))
	h.Set("Content-Type", obj.contentType)
	h.Set("ETag", `"etag123"`)
	h.Set("Last-Modified", time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC).Format(http.TimeFormat))
	for k, v := range obj.metadata {
		h.Set("X-Amz-Meta-"+k, v)
	}
	return h
}

func (f *fakeS3) list(prefix, token string) *http.Response {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult>`)
	page := keys
	switch {
	case token == "" && len(keys) > 1:
		page = keys[:1]
		b.WriteString("<IsTruncated>true</IsTruncated><NextContinuationToken>next</NextContinuationToken>")
	case token == "next":
		page = keys[1:]
		b.WriteString("<IsTruncated>false</IsTruncated>")
	default:
		b.WriteString("<IsTruncated>false</IsTruncated>")
	}
	for _, k := range page {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><ETag>&quot;e&quot;</ETag><LastModified>2024-06-03T08:00:00Z</LastModified></Contents>",
			k, len(f.objects[k].body))
	}
	b.WriteString("</ListBucketResult>")
	return respond(http.StatusOK, b.String(), http.Header{"Content-Type": {"application/xml"}})
}

// decodeChunked unwraps a single-chunk aws-chunked body: <hex>\r\n<body>\r\n0\r\n...
func decodeChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	n, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || n <= 0 || int64(len(parts[1])) != n || parts[2] != "0" {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newTestStore(t *testing.T, fake *fakeS3, prefix string) *Store {
	t.Helper()
	store, err := New(context.Background(), Config{
		Bucket:          "exports",
		Endpoint:        "https://mock.s3.local",
		Prefix:          prefix,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		PathStyle:       true,
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStoreBasicFlow(t *testing.T) {
	fake := newFakeS3()
	store := newTestStore(t, fake, "immobilog/")
	ctx := context.Background()

	info, err := store.Put(ctx, "reports/kibo.md", bytes.NewReader([]byte("hello")), core.PutOptions{ContentType: "text/markdown", Metadata: map[string]string{"event": "e1"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "reports/kibo.md" || info.ContentType != "text/markdown" || info.Size != 5 || info.Checksum != "etag123" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, ok := fake.objects["immobilog/reports/kibo.md"]; !ok {
		t.Fatalf("object should be stored under the prefix: %v", fake.objects)
	}
	if _, err := store.Put(ctx, "reports/kibo.md", bytes.NewReader([]byte("again")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := store.Get(ctx, "reports/kibo.md")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "hello" || got.Metadata["event"] != "e1" {
		t.Fatalf("unexpected get %q %+v", data, got)
	}
	if ok, err := store.Delete(ctx, "reports/kibo.md"); err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if ok, err := store.Delete(ctx, "reports/kibo.md"); err != nil || ok {
		t.Fatalf("second delete: %v %v", ok, err)
	}
}

func TestStoreOverwriteSkipsExistenceCheck(t *testing.T) {
	fake := newFakeS3()
	store := newTestStore(t, fake, "")
	ctx := context.Background()
	for _, body := range []string{"v1", "v22"} {
		if _, err := store.Put(ctx, "animals.csv", strings.NewReader(body), core.PutOptions{Overwrite: true}); err != nil {
			t.Fatalf("put %s: %v", body, err)
		}
	}
	if fake.puts != 2 || string(fake.objects["animals.csv"].body) != "v22" {
		t.Fatalf("expected replaced object, got %d puts %q", fake.puts, fake.objects["animals.csv"].body)
	}
}

func TestStoreMissingKeys(t *testing.T) {
	store := newTestStore(t, newFakeS3(), "")
	ctx := context.Background()
	if _, err := store.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from head, got %v", err)
	}
	if _, _, err := store.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
	if _, err := store.Put(ctx, "../x", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestStoreListPaginates(t *testing.T) {
	fake := newFakeS3()
	store := newTestStore(t, fake, "p")
	ctx := context.Background()
	for _, k := range []string{"events/b.json", "events/a.json", "bulk/animals.csv"} {
		if _, err := store.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, err := store.List(ctx, "events/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "events/a.json" || list[1].Key != "events/b.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	empty, err := store.List(ctx, "none/")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %+v %v", empty, err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for missing bucket")
	}
	store := newTestStore(t, newFakeS3(), "")
	if store.Driver() != core.DriverS3 {
		t.Fatalf("expected s3 driver")
	}
}

func TestDecodeChunked(t *testing.T) {
	if _, ok := decodeChunked([]byte("plain")); ok {
		t.Fatalf("plain body should not decode")
	}
	if _, ok := decodeChunked([]byte("5\r\nabc\r\n0\r\n")); ok {
		t.Fatalf("size mismatch should fail")
	}
	if b, ok := decodeChunked([]byte("5\r\nhello\r\n0\r\n")); !ok || string(b) != "hello" {
		t.Fatalf("expected hello, got %q", b)
	}
}
