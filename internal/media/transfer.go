package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tianheg/tg2mastodon/internal/domain"
)

// FileResolver resolves a platform file ID to a download URL.
type FileResolver interface {
	ResolveFileURL(ctx context.Context, fileID string) (string, error)
}

// Handle points at a downloaded media file on local disk.
type Handle struct {
	Path   string
	FileID string
	Size   int64
}

// TransferConfig configures the media transfer.
type TransferConfig struct {
	Dir          string // base directory for downloaded files (default: os.TempDir())
	MaxSizeBytes int64  // max download size in bytes (default: 50MB)
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Transfer downloads source media into local files and cleans them up after
// publishing.
type Transfer struct {
	resolver     FileResolver
	dir          string
	maxSizeBytes int64
	client       *http.Client
	logger       *slog.Logger
}

// NewTransfer creates a media transfer rooted at cfg.Dir.
func NewTransfer(resolver FileResolver, cfg TransferConfig) (*Transfer, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	maxSize := cfg.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024 // 50MB default
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}

	return &Transfer{
		resolver:     resolver,
		dir:          dir,
		maxSizeBytes: maxSize,
		client:       client,
		logger:       cfg.Logger,
	}, nil
}

// Download fetches the highest-resolution variant of a photo to local disk.
// The caller owns the returned handle and must Release it when done.
func (t *Transfer) Download(ctx context.Context, variants []domain.PhotoVariant) (*Handle, error) {
	if len(variants) == 0 {
		return nil, &domain.TransferError{Op: "resolve", Err: fmt.Errorf("no photo variants")}
	}
	largest := variants[len(variants)-1]

	fileURL, err := t.resolver.ResolveFileURL(ctx, largest.FileID)
	if err != nil {
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "resolve", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "download", Err: err}
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "download", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "download", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	storagePath := filepath.Join(t.dir, "tg-"+sanitizeFileID(largest.FileID)+extFromURL(fileURL))

	outFile, err := os.Create(storagePath)
	if err != nil {
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "write", Err: err}
	}

	limitedReader := io.LimitReader(resp.Body, t.maxSizeBytes+1)
	written, err := io.Copy(outFile, limitedReader)
	outFile.Close()
	if err != nil {
		os.Remove(storagePath)
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "write", Err: err}
	}
	if written > t.maxSizeBytes {
		os.Remove(storagePath)
		return nil, &domain.TransferError{FileID: largest.FileID, Op: "write", Err: fmt.Errorf("file too large: %d bytes (max: %d)", written, t.maxSizeBytes)}
	}

	t.logger.Info("media downloaded",
		"file_id", largest.FileID,
		"size", written,
		"path", storagePath,
	)

	return &Handle{Path: storagePath, FileID: largest.FileID, Size: written}, nil
}

// Release removes the downloaded file. Safe to call more than once and on nil.
func (t *Transfer) Release(h *Handle) {
	if h == nil || h.Path == "" {
		return
	}
	if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("failed to remove media file", "path", h.Path, "err", err)
	}
}

// unsafeChars matches anything that cannot appear in a local file name.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFileID(id string) string {
	return unsafeChars.ReplaceAllString(id, "_")
}

func extFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".jpg"
}
