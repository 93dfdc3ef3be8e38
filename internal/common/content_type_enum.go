package common

import "strings"

// MediaFileType classifies uploaded media
type MediaFileType string

const (
	MediaFileTypeImage MediaFileType = "image"
	MediaFileTypeVideo MediaFileType = "video"
)

// String returns the string representation
func (mft MediaFileType) String() string {
	return string(mft)
}

// IsValid checks if the media file type is valid
func (mft MediaFileType) IsValid() bool {
	return mft == MediaFileTypeImage || mft == MediaFileTypeVideo
}

func DetectFileType(mimeType string) MediaFileType {
	lowerMimeType := strings.ToLower(mimeType)
	if strings.HasPrefix(lowerMimeType, "image/") {
		return MediaFileTypeImage
	}
	if strings.HasPrefix(lowerMimeType, "video/") {
		return MediaFileTypeVideo
	}
	return MediaFileTypeImage // Default fallback
}

// ExtensionFor maps the MIME types accepted in chat messages to a file extension.
func ExtensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
