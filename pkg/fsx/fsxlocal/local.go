package fsxlocal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/culturalsoundlab/soundlab/pkg/errx"
	"github.com/culturalsoundlab/soundlab/pkg/fsx"
)

// LocalFileSystem implements fsx.FileSystemWithPresign on local disk. Signed
// URLs point at FileHandler mounted under publicURL.
type LocalFileSystem struct {
	basePath  string
	publicURL string
	signer    *Signer
	now       func() time.Time
}

// NewLocalFileSystem creates a local file system rooted at basePath.
func NewLocalFileSystem(basePath, publicURL string, signingKey []byte) (*LocalFileSystem, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, err
	}

	return &LocalFileSystem{
		basePath:  absPath,
		publicURL: strings.TrimRight(publicURL, "/"),
		signer:    signer,
		now:       time.Now,
	}, nil
}

// ============================================================================
// FileReader Implementation
// ============================================================================

func (l *LocalFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, mapErr(path, err, fsx.ErrRead)
	}
	return data, nil
}

func (l *LocalFileSystem) ReadFileStream(ctx context.Context, path string) (io.ReadCloser, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		return nil, mapErr(path, err, fsx.ErrRead)
	}
	return file, nil
}

func (l *LocalFileSystem) Stat(ctx context.Context, path string) (fsx.FileInfo, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return fsx.FileInfo{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		return fsx.FileInfo{}, mapErr(path, err, fsx.ErrRead)
	}
	return fsx.FileInfo{
		Name:        info.Name(),
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: detectContentType(full),
	}, nil
}

func (l *LocalFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	full, err := l.fullPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fsx.NewError(fsx.ErrRead, path, err)
	}
	return true, nil
}

// ============================================================================
// FileWriter Implementation
// ============================================================================

func (l *LocalFileSystem) WriteFile(ctx context.Context, path string, data []byte) error {
	full, err := l.fullPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fsx.NewError(fsx.ErrWrite, path, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fsx.NewError(fsx.ErrWrite, path, err)
	}
	return nil
}

func (l *LocalFileSystem) WriteFileStream(ctx context.Context, path string, r io.Reader) error {
	full, err := l.fullPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fsx.NewError(fsx.ErrWrite, path, err)
	}

	file, err := os.Create(full)
	if err != nil {
		return fsx.NewError(fsx.ErrWrite, path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return fsx.NewError(fsx.ErrWrite, path, err)
	}
	return nil
}

// ============================================================================
// PresignedURLGenerator Implementation
// ============================================================================

// GetPresignedDownloadURL returns publicURL/path?expires=..&signature=..
func (l *LocalFileSystem) GetPresignedDownloadURL(ctx context.Context, path string, expiration time.Duration) (string, error) {
	return l.presign(path, http.MethodGet, expiration)
}

// GetPresignedUploadURL returns a URL accepted by FileHandler for PUT.
func (l *LocalFileSystem) GetPresignedUploadURL(ctx context.Context, path string, expiration time.Duration) (string, error) {
	return l.presign(path, http.MethodPut, expiration)
}

func (l *LocalFileSystem) presign(path, method string, expiration time.Duration) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	expires := l.now().Add(expiration).Unix()
	sig := l.signer.Sign(method, clean, expires)
	return fmt.Sprintf("%s/%s?expires=%d&signature=%s", l.publicURL, clean, expires, sig), nil
}

// Verify checks a signature produced by presign.
func (l *LocalFileSystem) Verify(method, path string, expires int64, signature string) error {
	clean, err := cleanPath(path)
	if err != nil {
		return err
	}
	if l.now().Unix() > expires || !l.signer.Verify(method, clean, expires, signature) {
		return fsx.NewError(fsx.ErrInvalidSignature, clean, nil)
	}
	return nil
}

// ============================================================================
// Helper Methods
// ============================================================================

func (l *LocalFileSystem) fullPath(path string) (string, error) {
	clean, err := cleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.basePath, filepath.FromSlash(clean)), nil
}

// cleanPath normalises an object path and rejects anything escaping the root.
func cleanPath(path string) (string, error) {
	p := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+path)), "/")
	if p == "" {
		return "", fsx.NewError(fsx.ErrInvalidPath, path, nil)
	}
	return p, nil
}

func mapErr(path string, err error, code *errx.ErrorCode) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fsx.NewError(fsx.ErrNotFound, path, err)
	}
	return fsx.NewError(code, path, err)
}

// detectContentType detects MIME type from file extension
func detectContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
