package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/lottery-crawler/internal/lottery"
)

const defaultFixNote = "manually fixed via API"

func (s *Server) manualCrawl(w http.ResponseWriter, r *http.Request) {
	force, err := queryBool(r, "force", false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid force flag")
		return
	}
	codes := s.crawler.Codes()
	if code := r.URL.Query().Get("code"); code != "" {
		if _, err := s.store.LookupTypeID(r.Context(), code); err != nil {
			if errors.Is(err, lottery.ErrUnknownType) {
				writeError(w, http.StatusBadRequest, "Invalid lottery type")
				return
			}
			s.internalError(w, "lookup lottery type", err)
			return
		}
		codes = []string{code}
	}

	pageSize := s.cfg.Crawler.ManualPageSize
	if pageSize <= 0 {
		pageSize = 5
	}
	s.logger.Info("manual crawl requested",
		zap.String("request_id", RequestID(r.Context())),
		zap.Strings("codes", codes),
		zap.Bool("force", force),
	)
	summary := s.crawler.Run(r.Context(), codes, force, pageSize)
	status := http.StatusOK
	if !summary.OK() {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, envelope{Success: summary.OK(), Data: summary})
}

func (s *Server) runCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := s.cleaner.Run(r.Context())
	if err != nil {
		s.logger.Error("manual cleanup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}

func (s *Server) cleanupLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20, 1, maxLimit)
	logs, err := s.store.ListCleanupLogs(r.Context(), limit)
	if err != nil {
		s.internalError(w, "list cleanup logs", err)
		return
	}
	if logs == nil {
		logs = []lottery.CleanupLog{}
	}
	writeJSON(w, http.StatusOK, listEnvelope(logs, len(logs)))
}

func (s *Server) listErrors(w http.ResponseWriter, r *http.Request) {
	unfixed, err := queryBool(r, "unfixed", true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid unfixed flag")
		return
	}
	limit := queryInt(r, "limit", 50, 1, maxLimit)
	errs, err := s.store.ListErrors(r.Context(), r.URL.Query().Get("code"), unfixed, limit)
	if err != nil {
		s.internalError(w, "list crawl errors", err)
		return
	}
	if errs == nil {
		errs = []lottery.CrawlError{}
	}
	writeJSON(w, http.StatusOK, listEnvelope(errs, len(errs)))
}

type fixRequest struct {
	Note string `json:"note"`
}

func (s *Server) fixError(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid error id")
		return
	}
	var req fixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Note == "" {
		req.Note = defaultFixNote
	}
	if err := s.store.MarkErrorFixed(r.Context(), id, req.Note); err != nil {
		if errors.Is(err, lottery.ErrNotFound) {
			writeError(w, http.StatusNotFound, "crawl error not found")
			return
		}
		s.internalError(w, "mark error fixed", err)
		return
	}
	s.logger.Info("crawl error fixed manually", zap.Int64("id", id), zap.String("note", req.Note))
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"id": id, "fix_note": req.Note}})
}

func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return v, nil
}
