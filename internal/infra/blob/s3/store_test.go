package s3

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"wmscore/internal/blob/core"
)

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestPrefixedKeysRoundTrip(t *testing.T) {
	fake := &fakeS3{objects: make(map[string]fakeObject)}
	store, err := newWithHTTPClient(context.Background(), Config{
		Bucket:          "wms",
		Prefix:          "/site-a/",
		Endpoint:        "https://mock.s3.local",
		AccessKeyID:     "k",
		SecretAccessKey: "s",
		PathStyle:       true,
	}, &http.Client{Transport: fake})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "snapshots/x.json", strings.NewReader("{}"), core.PutOptions{Metadata: map[string]string{"pallets": "0"}}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := fake.objects["site-a/snapshots/x.json"]; !ok {
		t.Fatalf("expected prefixed object key, got %v", fake.objects)
	}
	list, err := store.List(ctx, "")
	if err != nil || len(list) != 1 || list[0].Key != "snapshots/x.json" {
		t.Fatalf("unexpected list %+v %v", list, err)
	}
	info, rc, err := store.Get(ctx, "snapshots/x.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "{}" || info.Metadata["pallets"] != "0" {
		t.Fatalf("unexpected get %q %+v", body, info)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	raw := "5\r\nhello\r\n6;ext=1\r\n world\r\n0\r\nx-amz-checksum-crc32:abc=\r\n\r\n"
	out, err := decodeAWSChunked([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected decode %q", out)
	}
	if _, err := decodeAWSChunked([]byte("zz\r\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestIsNotFoundIgnoresOtherErrors(t *testing.T) {
	if isNotFound(io.EOF) {
		t.Fatalf("plain errors are not not-found")
	}
}
