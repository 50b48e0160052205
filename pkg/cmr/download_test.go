package cmr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/granule.tif" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte("data"))
	}))
	defer server.Close()

	var last FileProgress
	client := NewClient()
	dest := filepath.Join(t.TempDir(), "file.tif")
	err := client.Download(context.Background(), server.URL+"/granule.tif", dest, WithProgress(func(p FileProgress) {
		last = p
	}))
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	contents, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(contents) != "data" {
		t.Fatalf("unexpected file contents: %q", contents)
	}
	if last.Downloaded != 4 || last.FileName != "file.tif" {
		t.Fatalf("unexpected progress: %+v", last)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be removed, got %v", err)
	}
}

func TestDownloadRejectsHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "file.tif")
	if err := NewClient().Download(context.Background(), server.URL+"/file.tif", dest); err == nil {
		t.Fatalf("expected HTML response error")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("destination should not exist after failure")
	}
}

func TestDownloadMissingURL(t *testing.T) {
	err := NewClient().Download(context.Background(), "", "ignored")
	if !errors.Is(err, ErrMissingDownloadURL) {
		t.Fatalf("expected missing download URL error, got %v", err)
	}
}

func TestDownloadAllAggregatesErrors(t *testing.T) {
	dir := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.tif":
			w.Write([]byte("data"))
		default:
			http.Error(w, "fail", http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	refs := []string{server.URL + "/ok.tif", server.URL + "/fail.tif", server.URL + "/ok.tif"}
	err := NewClient().DownloadAll(context.Background(), refs, dir, WithDownloadConcurrency(2))
	var batch BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %T: %v", err, err)
	}
	if len(batch.Errors) != 1 {
		t.Fatalf("expected single error, got %d", len(batch.Errors))
	}
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected wrapped ResponseError, got %v", err)
	}
	content, err := os.ReadFile(filepath.Join(dir, "ok.tif"))
	if err != nil {
		t.Fatalf("expected ok file to be written: %v", err)
	}
	if string(content) != "data" {
		t.Fatalf("unexpected file content: %s", content)
	}
}

func TestDownloadAllRejectsDuplicateFileNames(t *testing.T) {
	dir := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("content-of-" + r.URL.Path))
	}))
	defer server.Close()

	refs := []string{server.URL + "/a/data.tif", server.URL + "/b/data.tif"}
	err := NewClient().DownloadAll(context.Background(), refs, dir, WithDownloadConcurrency(1))
	var batch BatchError
	if !errors.As(err, &batch) {
		t.Fatalf("expected BatchError, got %T: %v", err, err)
	}
	if len(batch.Errors) != 1 || !errors.Is(err, ErrDuplicateFileName) {
		t.Fatalf("expected one duplicate name error, got %v", err)
	}
	if !strings.Contains(batch.Errors[0].Error(), "/b/data.tif") {
		t.Fatalf("expected error to name the skipped granule, got %v", batch.Errors[0])
	}
	content, err := os.ReadFile(filepath.Join(dir, "data.tif"))
	if err != nil {
		t.Fatalf("expected data.tif to be written: %v", err)
	}
	if string(content) != "content-of-/a/data.tif" {
		t.Fatalf("expected first granule to be kept, got %s", content)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected a single file, got %d", len(entries))
	}
}

func TestFileName(t *testing.T) {
	name, err := FileName("s3://bucket/path/to/a.tif")
	if err != nil || name != "a.tif" {
		t.Fatalf("unexpected name %q err %v", name, err)
	}
	if _, err := FileName("https://example.com/"); err == nil {
		t.Fatalf("expected error for URL without file name")
	}
}

func TestDownloadS3(t *testing.T) {
	ctx := context.Background()
	expiration := time.Now().Add(30 * time.Minute).UTC().Format("2006-01-02 15:04:05-07:00")
	var mu sync.Mutex
	var credentialRequests int
	credServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		credentialRequests++
		mu.Unlock()
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("expected bearer token on credentials request, got %q", got)
		}
		fmt.Fprintf(w, `{"accessKeyId":"AKIA","secretAccessKey":"SECRET","sessionToken":"TOKEN","expiration":"%s"}`, expiration)
	}))
	defer credServer.Close()

	client := NewClient(WithS3CredentialsURL(credServer.URL), WithAuthToken("token"))
	mock := &mockS3Downloader{content: []byte("s3data")}
	client.s3.newDownloader = func(cfg aws.Config) s3Downloader {
		mock.cfg = cfg
		return mock
	}

	ref := "s3://maap-bucket/path/file.tif"
	dest := filepath.Join(t.TempDir(), "file.tif")
	if err := client.Download(ctx, ref, dest); err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "s3data" {
		t.Fatalf("unexpected s3 file contents: %q", data)
	}
	if got := aws.ToString(mock.input.Bucket); got != "maap-bucket" {
		t.Fatalf("unexpected bucket: %s", got)
	}
	if got := aws.ToString(mock.input.Key); got != "path/file.tif" {
		t.Fatalf("unexpected key: %s", got)
	}
	if mock.cfg.Region != defaultS3Region {
		t.Fatalf("expected region %s, got %s", defaultS3Region, mock.cfg.Region)
	}
	creds, err := mock.cfg.Credentials.Retrieve(ctx)
	if err != nil {
		t.Fatalf("Retrieve credentials: %v", err)
	}
	if creds.AccessKeyID != "AKIA" || creds.SessionToken != "TOKEN" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	dest2 := filepath.Join(t.TempDir(), "file2.tif")
	if err := client.Download(ctx, ref, dest2); err != nil {
		t.Fatalf("second Download returned error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if credentialRequests != 1 {
		t.Fatalf("expected credentials reused, got %d requests", credentialRequests)
	}
}

func TestDownloadS3RefreshesExpiredCredentials(t *testing.T) {
	var mu sync.Mutex
	var credentialRequests int
	credServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		credentialRequests++
		mu.Unlock()
		fmt.Fprint(w, `{"accessKeyId":"AKIA","secretAccessKey":"SECRET","sessionToken":"TOKEN","expiration":"2024-01-01T00:30:00Z"}`)
	}))
	defer credServer.Close()

	client := NewClient(WithS3CredentialsURL(credServer.URL), WithS3Region("us-east-1"))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.s3.now = func() time.Time { return now }
	mock := &mockS3Downloader{content: []byte("x")}
	client.s3.newDownloader = func(cfg aws.Config) s3Downloader {
		mock.cfg = cfg
		return mock
	}

	dir := t.TempDir()
	if err := client.Download(context.Background(), "s3://b/k.tif", filepath.Join(dir, "1")); err != nil {
		t.Fatalf("Download: %v", err)
	}
	now = now.Add(time.Hour)
	if err := client.Download(context.Background(), "s3://b/k.tif", filepath.Join(dir, "2")); err != nil {
		t.Fatalf("Download: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if credentialRequests != 2 {
		t.Fatalf("expected credentials refreshed, got %d requests", credentialRequests)
	}
	if mock.cfg.Region != "us-east-1" {
		t.Fatalf("unexpected region %s", mock.cfg.Region)
	}
}

func TestDownloadS3NotConfigured(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "a.tif")
	err := NewClient().Download(context.Background(), "s3://bucket/a.tif", dest)
	if !errors.Is(err, ErrS3NotConfigured) {
		t.Fatalf("expected ErrS3NotConfigured, got %v", err)
	}
}

func TestSplitS3URL(t *testing.T) {
	bucket, key, err := splitS3URL("s3://bucket/a/b.tif")
	if err != nil || bucket != "bucket" || key != "a/b.tif" {
		t.Fatalf("unexpected split %q %q %v", bucket, key, err)
	}
	for _, bad := range []string{"https://bucket/a", "s3://bucket", "s3:///key"} {
		if _, _, err := splitS3URL(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

type mockS3Downloader struct {
	content []byte
	input   *s3.GetObjectInput
	cfg     aws.Config
}

func (m *mockS3Downloader) Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	copied := *input
	m.input = &copied
	if len(m.content) == 0 {
		return 0, fmt.Errorf("no content configured")
	}
	if _, err := w.WriteAt(m.content, 0); err != nil {
		return 0, err
	}
	return int64(len(m.content)), nil
}
