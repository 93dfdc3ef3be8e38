package media

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"quickchat/internal/common"
)

// HTTPServer streams stored images back out of GridFS.
type HTTPServer struct {
	storage FileStore
	router  *mux.Router
	log     zerolog.Logger
}

func NewHTTPServer(storage FileStore, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		storage: storage,
		router:  mux.NewRouter(),
		log:     log.With().Str("component", "media-server").Logger(),
	}
	s.router.HandleFunc("/media/{fileId}", s.serveFile).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	return s
}

func (s *HTTPServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *HTTPServer) serveFile(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["fileId"]

	fileReader, mediaFile, err := s.storage.DownloadFile(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("file_id", fileID).Msg("download failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer fileReader.Close()

	contentType := mediaFile.MimeType
	if contentType == "" {
		contentType = contentTypeFor(mediaFile.Filename)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.FormatInt(mediaFile.Size, 10))
	// file ids are never reused
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")

	if _, err := io.Copy(w, fileReader); err != nil {
		s.log.Warn().Err(err).Str("file_id", fileID).Msg("error streaming file")
	}
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

func (s *HTTPServer) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("media server is healthy"))
}
