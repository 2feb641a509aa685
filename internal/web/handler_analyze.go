package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vbonduro/insightstudio/internal/analysis"
	"github.com/vbonduro/insightstudio/internal/imaging"
)

// multipartOverhead is allowed on top of the image limit for the other form
// fields and part headers.
const multipartOverhead = 1 << 20

// submission is one parsed form post. decoded is nil when no file was sent.
type submission struct {
	instructions string
	filename     string
	decoded      *imaging.Decoded
}

func (sub *submission) request() analysis.Request {
	req := analysis.Request{Instructions: sub.instructions}
	if sub.decoded != nil {
		req.Image = sub.decoded.Image
	}
	return req
}

// outcome is what the analysis column shows after a submit.
type outcome struct {
	Level   string // "success", "warning" or "error"
	Message string
	HTML    template.HTML
	Result  *analysis.Result
}

type pageData struct {
	Model        string
	Instructions string
	Filename     string
	Preview      template.URL
	Outcome      *outcome
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.renderPage(w,
		pageData{Model: s.gateway.Model()},
		"base.html", "pages/index.html", "partials/result.html",
	); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

// handleAnalyze is the form submit. Handled outcomes, including failures,
// render with status 200 so the page stays usable for the next attempt.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := s.loggerFor(r)
	data := pageData{Model: s.gateway.Model()}

	sub, err := s.parseSubmission(w, r)
	if sub != nil {
		data.Instructions = sub.instructions
		data.Filename = sub.filename
	}

	if err == nil {
		if sub.decoded != nil {
			data.Preview = s.preview(sub.decoded, logger)
		}
		data.Outcome = s.analyze(r, sub, logger)
	} else {
		data.Outcome = s.failure(err)
	}

	if r.Header.Get("HX-Request") == "true" {
		if err := s.renderPartial(w, "partials/result.html", data); err != nil {
			logger.Error("render partial failed", "error", err)
		}
		return
	}
	if err := s.renderPage(w, data, "base.html", "pages/index.html", "partials/result.html"); err != nil {
		logger.Error("render page failed", "error", err)
	}
}

func (s *Server) analyze(r *http.Request, sub *submission, logger *slog.Logger) *outcome {
	// A submitted call runs to completion even if the browser goes away.
	ctx := context.WithoutCancel(r.Context())

	result, err := s.gateway.Analyze(ctx, sub.request())
	if err != nil {
		if analysis.KindOf(err) == analysis.KindServiceFailure {
			logger.Error("analysis failed", "error", err)
		}
		return s.failure(err)
	}

	html, err := s.renderer.HTML(result.Text)
	if err != nil {
		logger.Error("render result failed", "analysis_id", result.ID, "error", err)
		return &outcome{Level: "success", Message: result.Text, Result: result}
	}
	return &outcome{Level: "success", HTML: html, Result: result}
}

// failure maps an error onto what the user sees. A missing image or a busy
// slot is a warning; everything else is shown as "Error: <message>".
func (s *Server) failure(err error) *outcome {
	switch analysis.KindOf(err) {
	case analysis.KindMissingInput, analysis.KindBusy:
		return &outcome{Level: "warning", Message: err.Error()}
	default:
		return &outcome{Level: "error", Message: "Error: " + err.Error()}
	}
}

func (s *Server) preview(d *imaging.Decoded, logger *slog.Logger) template.URL {
	uri, err := d.Preview(s.opts.PreviewMaxDim)
	if err != nil {
		logger.Warn("preview failed", "error", err)
		return ""
	}
	// The URI is built from a re-encoded image we produced ourselves.
	return template.URL(uri)
}

// parseSubmission reads the "instructions" and "image" fields. A missing file
// is not an error here: the gateway reports it as missing input. Any other
// problem with the upload is returned as an analysis.Error of KindInvalidImage.
func (s *Server) parseSubmission(w http.ResponseWriter, r *http.Request) (*submission, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)

	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, analysis.InvalidImage(fmt.Errorf("image exceeds the %d byte upload limit", s.opts.MaxUploadBytes))
		}
		return nil, analysis.InvalidImage(fmt.Errorf("failed to parse form: %w", err))
	}

	sub := &submission{instructions: r.FormValue("instructions")}

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return sub, nil
	}
	if err != nil {
		return sub, analysis.InvalidImage(fmt.Errorf("failed to read upload: %w", err))
	}
	defer closeWithLog(file, "upload file", s.logger)

	sub.filename = header.Filename
	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		return sub, analysis.InvalidImage(fmt.Errorf("failed to read upload: %w", err))
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		return sub, analysis.InvalidImage(fmt.Errorf("image exceeds the %d byte upload limit", s.opts.MaxUploadBytes))
	}
	if len(data) == 0 {
		return sub, nil
	}

	decoded, err := imaging.Decode(data, s.opts.MaxImagePixels)
	if err != nil {
		return sub, analysis.InvalidImage(err)
	}
	sub.decoded = decoded
	return sub, nil
}

func (s *Server) loggerFor(r *http.Request) *slog.Logger {
	return s.logger.With("request_id", middleware.GetReqID(r.Context()))
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
