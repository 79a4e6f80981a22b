package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoshuaOlubori/truemeds-v2/internal/geo"
	"github.com/JoshuaOlubori/truemeds-v2/internal/model"
	"github.com/JoshuaOlubori/truemeds-v2/internal/pipeline"
	"github.com/JoshuaOlubori/truemeds-v2/internal/store"
)

// handleScan accepts a multipart upload and runs the verification pipeline.
//
//	POST /scan
//	  file: image file (required)
//	  lat, lng: decimal degrees (optional, both or neither)
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	geoloc, err := parseGeolocation(r.FormValue("lat"), r.FormValue("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.verifier.Verify(r.Context(), *upload, geoloc)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetScan returns a previously stored scan by id.
func (s *Server) handleGetScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "malformed scan id")
		return
	}

	record, err := s.store.GetScan(r.Context(), id)
	if err != nil {
		zap.L().Error("get scan failed", zap.String("scan_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type feedbackRequest struct {
	ScanID     string `json:"scanId"`
	IsHelpful  *bool  `json:"isHelpful"`
	ResultType string `json:"resultType"`
}

// handleFeedback records a thumbs-up/down for a scan. A second submission
// for the same scan replaces the first.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if _, err := uuid.Parse(req.ScanID); err != nil {
		writeError(w, http.StatusBadRequest, "malformed scan id")
		return
	}
	if req.IsHelpful == nil {
		writeError(w, http.StatusBadRequest, "isHelpful is required")
		return
	}

	record, err := s.store.GetScan(r.Context(), req.ScanID)
	if err != nil {
		zap.L().Error("feedback scan lookup failed", zap.String("scan_id", req.ScanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "scan not found")
		return
	}

	resultType := req.ResultType
	if resultType == "" {
		resultType = string(record.Verdict)
	}
	if err := s.store.UpsertFeedback(r.Context(), model.Feedback{
		ScanID:     req.ScanID,
		IsHelpful:  *req.IsHelpful,
		ResultType: resultType,
	}); err != nil {
		zap.L().Error("feedback upsert failed", zap.String("scan_id", req.ScanID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleStats returns the admin dashboard aggregates.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	collected, err := s.stats.Collect(r.Context())
	if err != nil {
		zap.L().Error("stats collection failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, collected)
}

// handleLocations returns scan geolocations binned into heatmap cells.
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	cellSize := geo.DefaultCellSize
	if raw := r.URL.Query().Get("cell"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 10 {
			writeError(w, http.StatusBadRequest, "cell must be a number in (0, 10]")
			return
		}
		cellSize = parsed
	}

	points, err := s.store.ScanLocations(r.Context(), 0)
	if err != nil {
		zap.L().Error("scan locations query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cells": geo.Bin(points, cellSize)})
}

// handleTrainingUpload stores an operator-labeled training image.
//
//	POST /training
//	  file: image file (required)
//	  label: "fake" | "original" (required)
//	  drugName, manufacturer, notes, uploadedBy: optional text
func (s *Server) handleTrainingUpload(w http.ResponseWriter, r *http.Request) {
	upload, ok := s.readUpload(w, r)
	if !ok {
		return
	}

	label := model.Verdict(r.FormValue("label"))
	if !model.ValidVerdict(label) {
		writeError(w, http.StatusBadRequest, "label must be \"fake\" or \"original\"")
		return
	}

	img, err := s.verifier.Train(r.Context(), *upload, label, model.TrainingMetadata{
		DrugName:     r.FormValue("drugName"),
		Manufacturer: r.FormValue("manufacturer"),
		Notes:        r.FormValue("notes"),
	}, r.FormValue("uploadedBy"))
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, img)
}

// handleTrainingList lists training images, optionally filtered by status
// and label.
func (s *Server) handleTrainingList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TrainingFilter{}

	if raw := q.Get("status"); raw != "" {
		status := model.TrainingStatus(raw)
		if !model.ValidTrainingStatus(status) {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}
	if raw := q.Get("label"); raw != "" {
		label := model.Verdict(raw)
		if !model.ValidVerdict(label) {
			writeError(w, http.StatusBadRequest, "unknown label")
			return
		}
		filter.Label = label
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	images, err := s.store.ListTrainingImages(r.Context(), filter)
	if err != nil {
		zap.L().Error("training list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if images == nil {
		images = []model.TrainingImage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"images": images})
}

// readUpload pulls the "file" part out of a multipart request, enforcing
// the hard upload ceiling. It writes the error response itself and reports
// success through the second return.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*pipeline.Upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, hardMaxUploadBytes)

	if err := r.ParseMultipartForm(hardMaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "expected multipart form data")
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		// Some clients still send the part under its old name.
		file, header, err = r.FormFile("image")
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return nil, false
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "could not read uploaded file")
		return nil, false
	}

	return &pipeline.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}, true
}

// parseGeolocation validates the optional lat/lng form fields. Both must be
// present together.
func parseGeolocation(latRaw, lngRaw string) (*model.Geolocation, error) {
	if latRaw == "" && lngRaw == "" {
		return nil, nil
	}
	if latRaw == "" || lngRaw == "" {
		return nil, errors.New("lat and lng must be supplied together")
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil || lat < -90 || lat > 90 {
		return nil, errors.New("lat must be a number in [-90, 90]")
	}
	lng, err := strconv.ParseFloat(lngRaw, 64)
	if err != nil || lng < -180 || lng > 180 {
		return nil, errors.New("lng must be a number in [-180, 180]")
	}
	return &model.Geolocation{Lat: lat, Lng: lng}, nil
}

// writePipelineError maps pipeline failures onto HTTP statuses.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrMissingInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrUnprocessableImage):
		writeError(w, http.StatusInternalServerError, "could not process image")
	case errors.Is(err, pipeline.ErrStorageUnavailable):
		zap.L().Error("blob storage unavailable", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
	case errors.Is(err, pipeline.ErrPersistenceFailure):
		zap.L().Error("scan persistence failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not save result")
	default:
		zap.L().Error("pipeline failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
