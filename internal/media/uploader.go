package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"quickchat/internal/common"
	"quickchat/internal/config"
	"quickchat/internal/dbmongo"
)

// FileStore is implemented by dbmongo.MediaStorage.
type FileStore interface {
	UploadFile(ctx context.Context, filename, mimeType, uploaderID string, content io.Reader) (*dbmongo.MediaFile, error)
	DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, *dbmongo.MediaFile, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// ImageUploader turns the data URI a client attaches to a message into a
// stable URL served by the media server. Only the URL is ever persisted.
type ImageUploader struct {
	store    FileStore
	baseURL  string
	maxBytes int64
	log      zerolog.Logger
}

func NewImageUploader(store FileStore, cfg *config.Config, log zerolog.Logger) *ImageUploader {
	base := cfg.Server.MediaBaseURL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &ImageUploader{
		store:    store,
		baseURL:  base,
		maxBytes: cfg.Server.MaxBodyBytes,
		log:      log.With().Str("component", "media").Logger(),
	}
}

func (u *ImageUploader) Upload(ctx context.Context, uploaderID uint64, dataURI string) (string, error) {
	mimeType, payload, err := decodeDataURI(dataURI)
	if err != nil {
		return "", err
	}
	if u.maxBytes > 0 && int64(len(payload)) > u.maxBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", common.ErrValidation, u.maxBytes)
	}

	filename := uuid.NewString() + common.ExtensionFor(mimeType)
	file, err := u.store.UploadFile(ctx, filename, mimeType, strconv.FormatUint(uploaderID, 10), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	u.log.Debug().
		Str("file_id", file.ID).
		Str("mime_type", mimeType).
		Int64("size", file.Size).
		Uint64("uploader_id", uploaderID).
		Msg("image stored")

	return u.baseURL + file.ID, nil
}

// Delete removes an image previously returned by Upload. URLs that were not
// issued by this uploader are rejected with ErrValidation.
func (u *ImageUploader) Delete(ctx context.Context, url string) error {
	fileID, ok := strings.CutPrefix(url, u.baseURL)
	if !ok || fileID == "" || strings.Contains(fileID, "/") {
		return fmt.Errorf("%w: %q is not a stored image", common.ErrValidation, url)
	}
	if err := u.store.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	u.log.Debug().Str("file_id", fileID).Msg("image deleted")
	return nil
}

// decodeDataURI accepts "data:image/<type>;base64,<payload>".
func decodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(uri), "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: image must be a data URI", common.ErrValidation)
	}
	header, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: malformed data URI", common.ErrValidation)
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("%w: image data must be base64 encoded", common.ErrValidation)
	}
	mimeType = strings.ToLower(mimeType)
	if common.ExtensionFor(mimeType) == "" {
		return "", nil, fmt.Errorf("%w: unsupported image type %q", common.ErrValidation, mimeType)
	}

	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("%w: invalid base64 image: %v", common.ErrValidation, err)
	}
	if len(payload) == 0 {
		return "", nil, fmt.Errorf("%w: empty image", common.ErrValidation)
	}
	return mimeType, payload, nil
}
