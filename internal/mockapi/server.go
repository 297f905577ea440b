// Package mockapi serves a fake catalog and similarity-search API with the
// same wire format as the real backend, for demos and end-to-end tests.
package mockapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/yonatan-nyo/Image-Audio-Retrieval/pkg/logger"
)

const (
	defaultPageSize = 9
	maxPageSize     = 10
	maxUploadBytes  = 32 << 20
)

// Config holds server configuration
type Config struct {
	Port           int
	AllowedOrigins []string

	// MinSimilarity drops ranked items scoring below it. Above 1 every
	// search answers 404.
	MinSimilarity float64
	MaxResults    int

	// Latency delays every search response.
	Latency time.Duration

	LogRequests bool
}

func DefaultConfig() Config {
	return Config{
		Port:           4001,
		AllowedOrigins: []string{"*"},
		MinSimilarity:  0.55,
		MaxResults:     10,
	}
}

// Server encapsulates the HTTP server and its catalog
type Server struct {
	catalog *Catalog
	config  Config
	log     *logger.Logger
}

func NewServer(catalog *Catalog, config Config, log *logger.Logger) *Server {
	if log == nil {
		log = logger.GetLogger().Named("mockapi")
	}
	return &Server{catalog: catalog, config: config, log: log}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "healthy",
		Time:   time.Now().Format(time.RFC3339),
		Songs:  len(s.catalog.Songs),
		Albums: len(s.catalog.Albums),
	})
}

// handleList serves GET /api/songs and GET /api/albums
func (s *Server) handleList(items []ItemDTO) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		q := r.URL.Query()
		pageNum, err := intParam(q.Get("page"), 1)
		if err != nil || pageNum < 1 {
			s.respondError(w, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		pageSize, err := intParam(q.Get("page_size"), defaultPageSize)
		if err != nil || pageSize < 1 {
			s.respondError(w, http.StatusBadRequest, "page_size must be a positive integer")
			return
		}
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		data, total := page(items, pageNum, pageSize, q.Get("search"))
		s.respondJSON(w, http.StatusOK, ListResponse{Data: data, TotalItems: total})
	}
}

// handleSearch serves POST /api/songs/search-by-audio and
// POST /api/albums/search-by-image.
func (s *Server) handleSearch(items []ItemDTO, timeUnit time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		started := time.Now()

		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.log.Warnf("Failed to parse form: %v", err)
			s.respondError(w, http.StatusBadRequest, "Failed to parse form data")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "Failed to read upload")
			return
		}
		if len(data) == 0 {
			s.respondError(w, http.StatusBadRequest, "file is empty")
			return
		}

		if s.config.Latency > 0 {
			select {
			case <-time.After(s.config.Latency):
			case <-r.Context().Done():
				return
			}
		}

		matches := rank(items, data, s.config.MinSimilarity, s.config.MaxResults)
		s.log.Debugf("search %s (%d bytes, %s): %d matches",
			r.URL.Path, len(data), header.Header.Get("Content-Type"), len(matches))
		if len(matches) == 0 {
			s.respondError(w, http.StatusNotFound, "No similar items found")
			return
		}

		s.respondJSON(w, http.StatusOK, SearchResponse{
			Data: matches,
			Time: float64(time.Since(started)) / float64(timeUnit),
		})
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.log.Infof("mock retrieval API listening on %s", addr)
	s.log.Infof("   Songs: %d, Albums: %d", len(s.catalog.Songs), len(s.catalog.Albums))
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	return http.ListenAndServe(addr, s.Handler())
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
