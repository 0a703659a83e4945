package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/passivleads/emailfinder/internal/batch"
	"github.com/passivleads/emailfinder/internal/discovery"
	"github.com/passivleads/emailfinder/internal/ledger"
	"github.com/passivleads/emailfinder/internal/metrics"
	"github.com/passivleads/emailfinder/internal/stream"
)

const maxUploadBytes = 32 << 20

// streamCSV drives the live batch pipeline: CSV upload in, SSE progress
// events out, final assembled CSV inside the terminal complete event.
func (s *Server) streamCSV(w http.ResponseWriter, r *http.Request) {
	b, _, ok := s.readBatchUpload(w, r)
	if !ok {
		return
	}

	user := userID(r)
	if !s.deduct(w, r, user, s.cfg.Ledger.BatchCost, "process-csv-stream") {
		return
	}

	sse, err := stream.NewWriter(w)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Workers finish even if the client disconnects mid-stream, so cost
	// accounting and artifact persistence see the whole batch.
	s.runJob(context.WithoutCancel(r.Context()), b, sse, user, s.cfg.Ledger.BatchCost)
}

// processCSV is the synchronous variant: the response is the assembled
// CSV itself, as a file attachment.
func (s *Server) processCSV(w http.ResponseWriter, r *http.Request) {
	b, filename, ok := s.readBatchUpload(w, r)
	if !ok {
		return
	}

	user := userID(r)
	if !s.deduct(w, r, user, s.cfg.Ledger.BatchCost, "process-csv") {
		return
	}

	doc, err := s.runJob(context.WithoutCancel(r.Context()), b, batch.DiscardSink{}, user, s.cfg.Ledger.BatchCost)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, batch.ErrEmptyBatch) || errors.Is(err, batch.ErrNoURLColumn) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err.Error())
		return
	}

	outName := outputFilename(filename)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", outName))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(batch.WithBOM(doc)); err != nil {
		s.logger.Error("write CSV response failed", zap.Error(err))
	}
}

type findEmailsRequest struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages"`
	Timeout  int    `json:"timeout"`
}

// findEmails runs a single-site crawl and returns the discovered
// addresses with crawl metadata.
func (s *Server) findEmails(w http.ResponseWriter, r *http.Request) {
	req, err := parseFindEmailsRequest(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user := userID(r)
	if !s.deduct(w, r, user, s.cfg.Ledger.URLCost, "find-emails") {
		return
	}

	res, err := s.deps.Crawler.Crawl(r.Context(), req.URL, discovery.Options{
		MaxPages: req.MaxPages,
		Timeout:  time.Duration(req.Timeout) * time.Second,
	})
	if err != nil {
		if refundErr := s.deps.Ledger.Refund(r.Context(), user, s.cfg.Ledger.URLCost, "crawl failed"); refundErr != nil {
			s.logger.Error("refund failed", zap.String("user", user), zap.Error(refundErr))
		}
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	emails := res.Emails
	if emails == nil {
		emails = []string{}
	}
	importantPages := res.ImportantPages
	if importantPages == nil {
		importantPages = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     req.URL,
		"results": map[string]any{
			"total_emails":    len(emails),
			"emails":          emails,
			"pages_scraped":   res.PagesScraped,
			"important_pages": importantPages,
		},
	})
}

// runJob builds and runs one batch job, refunding the batch cost when
// the whole job fails. Per-row failures never trigger a refund.
func (s *Server) runJob(ctx context.Context, b batch.Batch, sink batch.EventSink, user string, cost float64) (string, error) {
	jobID, err := s.deps.IDGen.NewRawID()
	if err != nil {
		s.logger.Error("generate job id failed", zap.Error(err))
		return "", err
	}

	job := batch.NewJob(jobID, b, batch.JobDeps{
		Discoverer: s.deps.Crawler,
		Sink:       sink,
		Emitter:    s.deps.Emitter,
		Store:      s.deps.Store,
		Clock:      s.deps.Clock,
		Logger:     s.logger,
	}, batch.JobConfig{
		Concurrency: s.cfg.Batch.Concurrency,
		SampleRows:  s.cfg.Batch.SampleRows,
	})

	doc, err := job.Run(ctx)
	if err != nil {
		metrics.ObserveBatch("error")
		if refundErr := s.deps.Ledger.Refund(ctx, user, cost, "job failed"); refundErr != nil {
			s.logger.Error("refund failed", zap.String("user", user), zap.Error(refundErr))
		}
		return "", err
	}
	metrics.ObserveBatch("success")
	return doc, nil
}

// readBatchUpload parses the multipart CSV upload. It writes the error
// response itself and reports ok=false on failure.
func (s *Server) readBatchUpload(w http.ResponseWriter, r *http.Request) (batch.Batch, string, bool) {
	file, header, err := s.openUpload(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return batch.Batch{}, "", false
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			s.logger.Warn("close upload failed", zap.Error(closeErr))
		}
	}()

	b, err := batch.ReadBatch(io.LimitReader(file, maxUploadBytes))
	if err != nil && !errors.Is(err, batch.ErrEmptyBatch) {
		// Empty batches flow through so the job reports them on the
		// stream; malformed CSV fails the request outright.
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid CSV: %v", err))
		return batch.Batch{}, "", false
	}
	return b, header.Filename, true
}

func (s *Server) openUpload(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("expected multipart form upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, fmt.Errorf("missing file upload %q", "file")
	}
	return file, header, nil
}

// deduct charges the user before any work is dispatched. It writes the
// error response itself and reports false when the request must stop.
func (s *Server) deduct(w http.ResponseWriter, r *http.Request, user string, cost float64, memo string) bool {
	err := s.deps.Ledger.CheckAndDeduct(r.Context(), user, cost, memo)
	if err == nil {
		return true
	}
	if errors.Is(err, ledger.ErrInsufficientCredits) {
		s.writeError(w, http.StatusPaymentRequired, "insufficient credits")
		return false
	}
	s.logger.Error("credit deduction failed", zap.String("user", user), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "credit check failed")
	return false
}

func parseFindEmailsRequest(r *http.Request) (findEmailsRequest, error) {
	req := findEmailsRequest{
		MaxPages: discovery.DefaultMaxPages,
		Timeout:  int(discovery.DefaultTimeout / time.Second),
	}

	if r.Method == http.MethodPost {
		var body findEmailsRequest
		if err := decodeJSONBody(r, &body); err == nil {
			if body.URL != "" {
				req.URL = body.URL
			}
			if body.MaxPages != 0 {
				req.MaxPages = body.MaxPages
			}
			if body.Timeout != 0 {
				req.Timeout = body.Timeout
			}
		}
	}
	q := r.URL.Query()
	if req.URL == "" {
		req.URL = q.Get("url")
	}
	if v := q.Get("max_pages"); v != "" && req.MaxPages == discovery.DefaultMaxPages {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("max_pages must be an integer")
		}
		req.MaxPages = n
	}
	if v := q.Get("timeout"); v != "" && req.Timeout == int(discovery.DefaultTimeout/time.Second) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("timeout must be an integer")
		}
		req.Timeout = n
	}

	if req.URL == "" {
		return req, fmt.Errorf("url parameter is required")
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return req, fmt.Errorf("url must include a scheme (http:// or https://)")
	}
	if req.MaxPages < 1 || req.MaxPages > 500 {
		return req, fmt.Errorf("max_pages must be between 1 and 500")
	}
	if req.Timeout < 1 {
		return req, fmt.Errorf("timeout must be >= 1")
	}
	return req, nil
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("empty body")
	}
	return json.NewDecoder(r.Body).Decode(dst)
}

func userID(r *http.Request) string {
	if user := r.Header.Get("X-User-ID"); user != "" {
		return user
	}
	return "anonymous"
}

func outputFilename(uploaded string) string {
	base := strings.TrimSuffix(filepath.Base(uploaded), filepath.Ext(uploaded))
	if base == "" || base == "." {
		base = "results"
	}
	return base + "_with_emails.csv"
}
