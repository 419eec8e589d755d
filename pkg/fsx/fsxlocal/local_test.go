package fsxlocal

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/fsx"
)

func newTestFS(t *testing.T) *LocalFileSystem {
	t.Helper()
	l, err := NewLocalFileSystem(t.TempDir(), "http://files.test/files/", []byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestWriteAndRead(t *testing.T) {
	l := newTestFS(t)
	ctx := context.Background()

	if err := l.WriteFile(ctx, "samples/kora.wav", []byte("RIFF")); err != nil {
		t.Fatal(err)
	}
	data, err := l.ReadFile(ctx, "samples/kora.wav")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "RIFF" {
		t.Fatalf("unexpected data %q", data)
	}
	info, err := l.Stat(ctx, "samples/kora.wav")
	if err != nil {
		t.Fatal(err)
	}
	if info.ContentType != "audio/wav" || info.Size != 4 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestReadMissing_NotFound(t *testing.T) {
	l := newTestFS(t)
	_, err := l.ReadFile(context.Background(), "nope.wav")
	if !errx.HasCode(err, fsx.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	ok, err := l.Exists(context.Background(), "nope.wav")
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	l := newTestFS(t)
	for _, p := range []string{"", "/", "."} {
		if _, err := l.ReadFile(context.Background(), p); !errx.HasCode(err, fsx.ErrInvalidPath) {
			t.Errorf("path %q: expected invalid path, got %v", p, err)
		}
	}
	// Clean anchors at the root, so ../ cannot escape it.
	if err := l.WriteFile(context.Background(), "../../escape.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := l.Exists(context.Background(), "escape.txt"); !ok {
		t.Fatal("expected traversal to be clamped inside the root")
	}
}

func TestPresignedURL_VerifiesAndExpires(t *testing.T) {
	l := newTestFS(t)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	raw, err := l.GetPresignedDownloadURL(context.Background(), "/samples/kora.wav", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(raw, "http://files.test/files/samples/kora.wav?") {
		t.Fatalf("unexpected url %s", raw)
	}
	expires, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	sig := u.Query().Get("signature")

	if err := l.Verify(http.MethodGet, "samples/kora.wav", expires, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := l.Verify(http.MethodPut, "samples/kora.wav", expires, sig); err == nil {
		t.Fatal("signature must be bound to the method")
	}
	if err := l.Verify(http.MethodGet, "samples/other.wav", expires, sig); err == nil {
		t.Fatal("signature must be bound to the path")
	}

	now = now.Add(2 * time.Minute)
	if err := l.Verify(http.MethodGet, "samples/kora.wav", expires, sig); !errx.HasCode(err, fsx.ErrInvalidSignature) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestNewSigner_RejectsBadKeys(t *testing.T) {
	if _, err := NewSigner(nil); err == nil {
		t.Fatal("expected error for empty key")
	}
	if _, err := NewSigner(make([]byte, 65)); err == nil {
		t.Fatal("expected error for oversized key")
	}
}

func TestFileHandler_ServesSignedDownloads(t *testing.T) {
	l := newTestFS(t)
	ctx := context.Background()
	if err := l.WriteFile(ctx, "gen/out.wav", []byte("audio")); err != nil {
		t.Fatal(err)
	}

	app := fiber.New()
	app.All("/files/*", FileHandler(l))

	raw, _ := l.GetPresignedDownloadURL(ctx, "gen/out.wav", time.Minute)
	u, _ := url.Parse(raw)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "audio" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, body)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/files/gen/out.wav?expires=1&signature=bad", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatal("expected tampered request to be rejected")
	}
}
