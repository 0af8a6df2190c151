package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

const (
	extractionIDHeader = "X-Extraction-Id"
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	// Base64 inflates payloads by a third; this leaves room for a 20 MiB image.
	maxExtractBodyBytes = 28 << 20
	maxReviewBodyBytes  = 64 << 10
)

// extract always answers 200 with a fused result unless the request itself is invalid.
func (rt *Router) extract(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("extract_handler_panic",
				"request_id", requestIDFromContext(r.Context()),
				"panic", fmt.Sprint(rec),
			)
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:   "internal error",
				Details: fmt.Sprint(rec),
			})
		}
	}()

	if rt.extractor == nil {
		writeError(w, http.StatusNotImplemented, "extraction is not enabled")
		return
	}

	var req domain.ExtractionRequest
	body := http.MaxBytesReader(w, r.Body, maxExtractBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.RequestID = requestIDFromContext(r.Context())

	extraction, err := rt.extractor.Extract(r.Context(), req)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("extract_failed", "request_id", req.RequestID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Error:   "extraction failed",
			Details: err.Error(),
		})
		return
	}

	w.Header().Set(extractionIDHeader, extraction.ID)
	writeJSON(w, http.StatusOK, extraction.Result)
}

func (rt *Router) listExtractions(w http.ResponseWriter, r *http.Request) {
	if rt.reader == nil {
		writeError(w, http.StatusNotImplemented, "extraction records are not enabled")
		return
	}
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	records, err := rt.reader.List(r.Context(), filter)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (rt *Router) getExtraction(w http.ResponseWriter, r *http.Request) {
	if rt.reader == nil {
		writeError(w, http.StatusNotImplemented, "extraction records are not enabled")
		return
	}
	record, err := rt.reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) reviewExtraction(w http.ResponseWriter, r *http.Request) {
	if rt.reviewer == nil {
		writeError(w, http.StatusNotImplemented, "extraction review is not enabled")
		return
	}

	var corrections domain.FieldCorrections
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReviewBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&corrections); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	record, err := rt.reviewer.Review(r.Context(), r.PathValue("id"), corrections)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) getExtractionImage(w http.ResponseWriter, r *http.Request) {
	if rt.images == nil {
		writeError(w, http.StatusNotImplemented, "image archive is not enabled")
		return
	}
	rc, contentType, err := rt.images.OpenImage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("image_stream_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
	}
}

func (rt *Router) exportExtractions(w http.ResponseWriter, r *http.Request) {
	if rt.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export is not enabled")
		return
	}
	filter, err := parseRecordFilter(r)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	data, err := rt.exporter.ExportXLSX(r.Context(), filter)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="extractions.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseRecordFilter(r *http.Request) (domain.RecordFilter, error) {
	query := r.URL.Query()
	status, err := domain.ParseReviewStatus(query.Get("status"))
	if err != nil {
		return domain.RecordFilter{}, err
	}
	filter := domain.RecordFilter{Status: status}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return domain.RecordFilter{}, domain.WrapError(domain.ErrInvalidInput, "parse limit", fmt.Errorf("limit must be a positive integer"))
		}
		filter.Limit = limit
	}
	return filter, nil
}
