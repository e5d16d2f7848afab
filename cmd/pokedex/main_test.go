package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"pokedex/internal/config"
	"pokedex/internal/infra/persistence/document"
	"pokedex/internal/infra/persistence/memory"
	"pokedex/pkg/domain"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pokedex dev ("), out)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pokedex.yaml")
	out, err := execute(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	out, err = execute(t, "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	cfg, err := config.Load(config.New(), path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestMissingExplicitConfigFails(t *testing.T) {
	_, err := execute(t, "export", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestExportPrintsSeedWhenNothingPersisted(t *testing.T) {
	out, err := execute(t, "export", "--storage", "file", "--data-dir", t.TempDir())
	require.NoError(t, err)
	want, err := document.Encode(memory.Snapshot{Records: domain.Seed()}, domain.IDPolicyMax)
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", out)
}

func TestExportPrintsPersistedDocument(t *testing.T) {
	dir := t.TempDir()
	body := "{\n    \"7\": {\n        \"name\": \"Mew\",\n        \"category\": \"Psychic\",\n        \"level\": 50\n    }\n}"
	require.NoError(t, os.WriteFile(filepath.Join(dir, document.DefaultKey), []byte(body), 0o644))
	out, err := execute(t, "export", "--data-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, body+"\n", out)
}

func startServe(t *testing.T, cfg config.Config) (string, func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, zap.NewNop(), func(a net.Addr) { addrs <- a })
	}()
	select {
	case a := <-addrs:
		return "http://" + a.String(), func() error {
			cancel()
			return <-done
		}
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
		return "", nil
	}
}

func testClient() *http.Client {
	return &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
}

func TestServeLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Storage.Driver = "memory"
	base, stop := startServe(t, cfg)

	client := testClient()
	resp, err := client.Get(base + "/records/1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Pikachu","category":"Electric","level":25}`, string(body))

	resp, err = client.Get(base + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Contains(t, string(body), "pokedex_records 5")
	assert.Contains(t, string(body), "go_goroutines")

	require.NoError(t, stop())
}

func TestServePersistsToFile(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Storage.Dir = dir
	base, stop := startServe(t, cfg)

	_, err := os.Stat(filepath.Join(dir, document.DefaultKey))
	assert.True(t, os.IsNotExist(err), "nothing is written before the first mutation")

	resp, err := testClient().Post(base+"/records/", "application/json", strings.NewReader(`{"name":"Eevee","category":"Normal","level":5}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NoError(t, stop())

	data, err := os.ReadFile(filepath.Join(dir, document.DefaultKey))
	require.NoError(t, err)
	snapshot, err := document.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, snapshot.Records.IDs())
}

func TestServeListenError(t *testing.T) {
	cfg := config.Default()
	cfg.HTTP.Addr = "256.0.0.1:99999"
	cfg.Storage.Driver = "memory"
	err := serve(context.Background(), cfg, zap.NewNop(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}
