// Package attach resolves local file paths into opaque attachment
// references by uploading them to the backend. Resolution happens before
// a message is sent; any failure aborts the send so the transport never
// sees a half-resolved message.
package attach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parleychat/parley/internal/event"
)

// maxFileSize bounds a single attachment at 10 MiB, matching the
// backend's upload limit.
const maxFileSize = 10 << 20

var (
	// ErrFileTooLarge indicates the file exceeds the upload limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrUploadFailed indicates the backend rejected the upload.
	ErrUploadFailed = errors.New("upload failed")
)

// Resolver turns local paths into attachment references.
type Resolver interface {
	Resolve(ctx context.Context, paths []string) ([]event.Attachment, error)
}

// Uploader posts files to the backend upload endpoint as multipart
// requests.
type Uploader struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *slog.Logger
}

// NewUploader creates an Uploader for the given endpoint.
func NewUploader(endpoint, apiKey string, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}
}

// Resolve uploads each path in order and returns the references. The
// first failure aborts; partial uploads on the backend are harmless
// because unreferenced files expire server-side.
func (u *Uploader) Resolve(ctx context.Context, paths []string) ([]event.Attachment, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	out := make([]event.Attachment, 0, len(paths))
	for _, path := range paths {
		att, err := u.upload(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("attach %s: %w", path, err)
		}
		out = append(out, att)
	}
	return out, nil
}

// uploadResponse is the backend's reply to a successful upload.
type uploadResponse struct {
	FileID string `json:"file_id"`
	URL    string `json:"url"`
}

func (u *Uploader) upload(ctx context.Context, path string) (event.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return event.Attachment{}, err
	}
	if info.Size() > maxFileSize {
		return event.Attachment{}, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, info.Size())
	}

	f, err := os.Open(path)
	if err != nil {
		return event.Attachment{}, err
	}
	defer f.Close()

	mimeType := detectMime(path, f)

	var body strings.Builder
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return event.Attachment{}, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return event.Attachment{}, err
	}
	if err := mw.Close(); err != nil {
		return event.Attachment{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, strings.NewReader(body.String()))
	if err != nil {
		return event.Attachment{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+u.apiKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return event.Attachment{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return event.Attachment{}, fmt.Errorf("%w: status %d: %s", ErrUploadFailed, resp.StatusCode, snippet)
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return event.Attachment{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}

	u.logger.Debug("attachment uploaded", "file", filepath.Base(path), "file_id", ur.FileID)
	return event.Attachment{
		Type:     kindForMime(mimeType),
		FileID:   ur.FileID,
		URL:      ur.URL,
		MimeType: mimeType,
		Size:     info.Size(),
		Filename: filepath.Base(path),
	}, nil
}

// detectMime resolves the MIME type by extension, sniffing content when
// the extension is unknown. The reader is rewound afterwards.
func detectMime(path string, f *os.File) string {
	if mt := mime.TypeByExtension(filepath.Ext(path)); mt != "" {
		if i := strings.IndexByte(mt, ';'); i > 0 {
			mt = mt[:i]
		}
		return mt
	}

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	_, _ = f.Seek(0, io.SeekStart)
	return http.DetectContentType(buf[:n])
}

// kindForMime buckets a MIME type into the protocol's attachment kinds.
func kindForMime(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
