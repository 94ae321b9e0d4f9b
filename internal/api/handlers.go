package api

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/tennis-analyzer/internal/analysis"
	"github.com/fpang/tennis-analyzer/internal/chat"
	"github.com/fpang/tennis-analyzer/internal/s3util"
	"github.com/rs/zerolog/log"
)

const (
	msgMissingAnalyzeFields = "Missing blobUrl or playerSide"
	msgMissingFields        = "Missing required fields"
)

// AnalyzeRequest starts stroke counting for an uploaded video. BlobURL is
// the storage key returned by /api/upload-url; StorageLocator is accepted as
// an alias.
type AnalyzeRequest struct {
	BlobURL        string `json:"blobUrl"`
	StorageLocator string `json:"storageLocator,omitempty"`
	PlayerSide     string `json:"playerSide"`
}

// TechniqueRequest asks for a breakdown of one stroke type in an already
// ingested video.
type TechniqueRequest struct {
	GeminiFileURI      string `json:"geminiFileUri"`
	GeminiFileMIMEType string `json:"geminiFileMimeType,omitempty"`
	StrokeType         string `json:"strokeType"`
	PlayerSide         string `json:"playerSide"`
}

// ReleaseRequest names an ingested video, an uploaded video that was never
// analyzed, or both.
type ReleaseRequest struct {
	GeminiFileName string `json:"geminiFileName,omitempty"`
	BlobURL        string `json:"blobUrl,omitempty"`
}

// HealthResponse reports build identity.
type HealthResponse struct {
	Status    string `json:"status"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Commit:    s.cfg.Commit,
		BuildTime: s.cfg.BuildTime,
	})
}

// GET /api/upload-url?filename=...&contentType=...&size=...
// Returns a presigned S3 PUT URL so the client can upload directly to S3.
// Content type and size are checked here, before any bytes move.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	filename := q.Get("filename")
	contentType := q.Get("contentType")
	if filename == "" || contentType == "" {
		httpError(w, http.StatusBadRequest, "filename and contentType are required")
		return
	}
	filename = filepath.Base(filename)

	var size int64
	if raw := q.Get("size"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			httpError(w, http.StatusBadRequest, "size must be a positive integer")
			return
		}
		size = n
	}

	ticket, err := s.cfg.Storage.PresignUpload(r.Context(), filename, contentType, size)
	if err != nil {
		log.Warn().Err(err).Str("filename", filename).Str("contentType", contentType).Msg("Upload URL rejected")
		failRequest(w, err)
		return
	}

	log.Info().Str("blobUrl", ticket.Key).Int64("size", size).Msg("Upload authorized")
	respondJSON(w, http.StatusOK, ticket)
}

// POST /api/analyze
// Fetches the uploaded video, ingests it, deletes the stored copy, and runs
// stroke counting. The response carries the remote file handle the client
// reuses for technique requests.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AnalyzeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, msgMissingAnalyzeFields, err.Error())
		return
	}
	key := strings.TrimSpace(req.BlobURL)
	if key == "" {
		key = strings.TrimSpace(req.StorageLocator)
	}
	if key == "" || strings.TrimSpace(req.PlayerSide) == "" {
		httpError(w, http.StatusBadRequest, msgMissingAnalyzeFields)
		return
	}
	side, err := analysis.ParsePlayerSide(req.PlayerSide)
	if err != nil {
		failRequest(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	result, err := s.analyze(ctx, key, side)
	if err != nil {
		failRequest(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) analyze(ctx context.Context, key string, side analysis.PlayerSide) (*analysis.AnalysisResult, error) {
	start := time.Now()

	obj, err := s.cfg.Storage.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	handle, err := s.cfg.Ingestor.Ingest(ctx, obj.Data, obj.ContentType, key)
	obj.Data = nil
	if err != nil {
		return nil, err
	}

	// The stored copy is no longer needed once the provider has the video.
	if err := s.cfg.Storage.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("blobUrl", key).Msg("Failed to delete uploaded video, continuing")
	}

	raw, err := s.cfg.Inferrer.Run(ctx, handle, chat.StrokeCounting, chat.Params{Side: side})
	if err != nil {
		s.releaseOrphan(ctx, handle)
		return nil, err
	}
	result, err := analysis.NormalizeAnalysis(raw, handle)
	if err != nil {
		s.releaseOrphan(ctx, handle)
		return nil, err
	}

	log.Info().
		Str("geminiFileName", handle.Name).
		Int("totalStrokes", result.TotalStrokes).
		Int("strokeTypes", len(result.Strokes)).
		Dur("duration", time.Since(start)).
		Msg("Stroke analysis complete")
	return result, nil
}

// releaseOrphan deletes a file whose handle never reached the client.
func (s *Server) releaseOrphan(ctx context.Context, handle analysis.RemoteVideoHandle) {
	s.cfg.Ingestor.Release(context.WithoutCancel(ctx), handle.Name)
}

// POST /api/technique
func (s *Server) handleTechnique(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req TechniqueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, msgMissingFields, err.Error())
		return
	}
	strokeType := strings.TrimSpace(req.StrokeType)
	if strings.TrimSpace(req.GeminiFileURI) == "" || strokeType == "" || strings.TrimSpace(req.PlayerSide) == "" {
		httpError(w, http.StatusBadRequest, msgMissingFields)
		return
	}
	side, err := analysis.ParsePlayerSide(req.PlayerSide)
	if err != nil {
		failRequest(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	handle := analysis.RemoteVideoHandle{
		URI:      req.GeminiFileURI,
		MIMEType: req.GeminiFileMIMEType,
	}
	raw, err := s.cfg.Inferrer.Run(ctx, handle, chat.TechniqueBreakdown, chat.Params{Side: side, StrokeType: strokeType})
	if err != nil {
		failRequest(w, err)
		return
	}

	technique, err := analysis.NormalizeTechniqueFor(raw, strokeType)
	if err != nil {
		failRequest(w, err)
		return
	}

	log.Info().Str("strokeType", strokeType).Str("rating", technique.OverallRating).Msg("Technique analysis complete")
	respondJSON(w, http.StatusOK, technique)
}

// POST /api/release
// Deletes an ingested video and/or an uploaded video the client abandoned
// before analysis. Always best-effort: the provider expires files on its
// own.
func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req ReleaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "Missing geminiFileName or blobUrl", err.Error())
		return
	}
	name := strings.TrimSpace(req.GeminiFileName)
	key := strings.TrimSpace(req.BlobURL)
	if name == "" && key == "" {
		httpError(w, http.StatusBadRequest, "Missing geminiFileName or blobUrl")
		return
	}
	if key != "" {
		if err := s3util.ValidateKey(key); err != nil {
			httpError(w, http.StatusBadRequest, "Invalid blobUrl", err.Error())
			return
		}
	}

	if name != "" {
		s.cfg.Ingestor.Release(r.Context(), name)
	}
	if key != "" {
		if err := s.cfg.Storage.Delete(r.Context(), key); err != nil {
			log.Warn().Err(err).Str("blobUrl", key).Msg("Failed to discard uploaded video")
		} else {
			log.Info().Str("blobUrl", key).Msg("Discarded unanalyzed upload")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
