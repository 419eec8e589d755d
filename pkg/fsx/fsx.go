package fsx

import (
	"context"
	"io"
	"time"
)

// FileInfo represents information about a stored object
type FileInfo struct {
	Name        string    // Base name of the object
	Size        int64     // Size in bytes
	ModTime     time.Time // Modification time
	ContentType string    // MIME type (when available)
}

// FileReader provides read-only operations
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	ReadFileStream(ctx context.Context, path string) (io.ReadCloser, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter provides write operations
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
	WriteFileStream(ctx context.Context, path string, r io.Reader) error
}

// PresignedURLGenerator produces time-limited URLs for arbitrary object paths
type PresignedURLGenerator interface {
	// GetPresignedDownloadURL generates a presigned URL for downloading a file
	GetPresignedDownloadURL(ctx context.Context, path string, expiration time.Duration) (string, error)

	// GetPresignedUploadURL generates a presigned URL for uploading a file
	GetPresignedUploadURL(ctx context.Context, path string, expiration time.Duration) (string, error)
}

// FileSystem combines read and write operations
type FileSystem interface {
	FileReader
	FileWriter
}

// FileSystemWithPresign combines standard file operations with presigned URL generation
type FileSystemWithPresign interface {
	FileSystem
	PresignedURLGenerator
}
