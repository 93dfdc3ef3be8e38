package dbmongo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"

	"quickchat/internal/common"
)

type MediaStorage struct {
	gridFS *gridfs.Bucket
}

func NewMediaStorage(mongoClient *MongoClient) *MediaStorage {
	return &MediaStorage{
		gridFS: mongoClient.GridFS,
	}
}

type MediaFile struct {
	ID         string               `json:"id"` // GridFS ObjectID hex
	Filename   string               `json:"filename"`
	Size       int64                `json:"size"`
	MimeType   string               `json:"mime_type"`
	FileType   common.MediaFileType `json:"file_type"`
	UploadedBy string               `json:"uploaded_by"`
	UploadedAt time.Time            `json:"uploaded_at"`
}

func (ms *MediaStorage) UploadFile(ctx context.Context, filename, mimeType, uploaderID string, content io.Reader) (*MediaFile, error) {
	fileType := common.DetectFileType(mimeType)
	uploadedAt := time.Now().UTC()

	metadata := bson.M{
		"file_type":   fileType.String(),
		"mime_type":   mimeType,
		"uploaded_by": uploaderID,
		"uploaded_at": uploadedAt,
	}

	opts := options.GridFSUpload().SetMetadata(metadata)
	stream, err := ms.gridFS.OpenUploadStream(filename, opts)
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}

	size, err := io.Copy(stream, content)
	if err != nil {
		_ = stream.Abort()
		return nil, fmt.Errorf("file copy failed: %w", err)
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("upload finalize failed: %w", err)
	}

	return &MediaFile{
		ID:         stream.FileID.(primitive.ObjectID).Hex(),
		Filename:   filename,
		Size:       size,
		MimeType:   mimeType,
		FileType:   fileType,
		UploadedBy: uploaderID,
		UploadedAt: uploadedAt,
	}, nil
}

// DownloadFile returns a stream the caller must close. A malformed or unknown
// id yields common.ErrNotFound.
func (ms *MediaStorage) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, *MediaFile, error) {
	objectID, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid file ID %q", common.ErrNotFound, fileID)
	}

	stream, err := ms.gridFS.OpenDownloadStream(objectID)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, nil, fmt.Errorf("%w: file %s", common.ErrNotFound, fileID)
		}
		return nil, nil, fmt.Errorf("download failed: %w", err)
	}

	fileInfo := stream.GetFile()
	var metadata bson.M
	if fileInfo.Metadata != nil {
		if err := bson.Unmarshal(fileInfo.Metadata, &metadata); err != nil {
			metadata = nil
		}
	}

	mediaFile := &MediaFile{
		ID:         fileID,
		Filename:   fileInfo.Name,
		Size:       fileInfo.Length,
		MimeType:   getStringFromMap(metadata, "mime_type"),
		FileType:   common.MediaFileType(getStringFromMap(metadata, "file_type")),
		UploadedBy: getStringFromMap(metadata, "uploaded_by"),
		UploadedAt: fileInfo.UploadDate,
	}

	return stream, mediaFile, nil
}

func (ms *MediaStorage) DeleteFile(ctx context.Context, fileID string) error {
	objectID, err := primitive.ObjectIDFromHex(fileID)
	if err != nil {
		return fmt.Errorf("%w: invalid file ID %q", common.ErrNotFound, fileID)
	}
	if err := ms.gridFS.DeleteContext(ctx, objectID); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return fmt.Errorf("%w: file %s", common.ErrNotFound, fileID)
		}
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}

func getStringFromMap(m bson.M, key string) string {
	if m == nil {
		return ""
	}
	if val, ok := m[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
