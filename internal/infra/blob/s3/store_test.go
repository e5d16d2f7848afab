package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"pokedex/internal/blob/core"
)

func TestS3MockPutGetOverwriteDelete(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	if _, err := store.Put(ctx, "pokemons.json", strings.NewReader(`{"1":{}}`), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	info, err := store.Put(ctx, "pokemons.json", strings.NewReader(`{"2":{}}`), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("overwrite put: %v", err)
	}
	if info.Size != 8 || info.ETag != "etag" {
		t.Fatalf("unexpected put info %+v", info)
	}
	got, rc, err := store.Get(ctx, "pokemons.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"2":{}}` {
		t.Fatalf("expected overwritten body, got %q", body)
	}
	if got.ContentType != "application/json" || got.ETag != "etag" || got.Size != 8 {
		t.Fatalf("unexpected get info %+v", got)
	}
	existed, err := store.Delete(ctx, "pokemons.json")
	if err != nil || !existed {
		t.Fatalf("delete: %v existed=%v", err, existed)
	}
	existed, err = store.Delete(ctx, "pokemons.json")
	if err != nil || existed {
		t.Fatalf("second delete: %v existed=%v", err, existed)
	}
}

func TestS3MockGetMissingMapsToNotFound(t *testing.T) {
	store := NewMockForTests()
	if _, _, err := store.Get(context.Background(), "absent.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestS3ObjectKeyPrefix(t *testing.T) {
	store := NewMockForTests()
	store.prefix = "pokedex"
	if got := store.objectKey("pokemons.json"); got != "pokedex/pokemons.json" {
		t.Fatalf("unexpected key %q", got)
	}
	ctx := context.Background()
	if _, err := store.Put(ctx, "pokemons.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, rc, err := store.Get(ctx, "pokemons.json"); err != nil {
		t.Fatalf("get with prefix: %v", err)
	} else {
		_ = rc.Close()
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestNewWithStaticCredentials(t *testing.T) {
	store, err := New(context.Background(), Config{
		Bucket:          "pokedex",
		Endpoint:        "http://127.0.0.1:9000",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if store.bucket != "pokedex" {
		t.Fatalf("unexpected bucket %q", store.bucket)
	}
}

func TestDecodeChunkedLite(t *testing.T) {
	body, ok := decodeChunkedLite([]byte("5\r\nhello\r\n0\r\nx-amz-checksum-crc32:abc\r\n\r\n"))
	if !ok || string(body) != "hello" {
		t.Fatalf("decode: %q %v", body, ok)
	}
	if _, ok := decodeChunkedLite([]byte("plain body")); ok {
		t.Fatalf("plain body should not decode")
	}
	if _, ok := decodeChunkedLite([]byte("zz\r\nhello\r\n0\r\n")); ok {
		t.Fatalf("invalid hex should not decode")
	}
}

func TestMockHeadersAreCanonical(t *testing.T) {
	h := objectHeaders(mockObj{body: []byte("abc"), contentType: "application/json"})
	if h.Get("ETag") != `"etag"` {
		t.Fatalf("etag not visible through Header.Get: %v", h)
	}
	if _, ok := h["Etag"]; !ok {
		t.Fatalf("expected canonical Etag key, got %v", h)
	}
	if h.Get("Content-Length") != "3" {
		t.Fatalf("unexpected content length %q", h.Get("Content-Length"))
	}
}
