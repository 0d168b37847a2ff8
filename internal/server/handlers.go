package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/analysis"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/extraction"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/report"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/utils"
)

// upload is the validated shape of the multipart file part.
type upload struct {
	Filename  string `validate:"required"`
	Extension string `validate:"oneof=.csv .tsv .xlsx"`
	Size      int64  `validate:"gt=0"`
}

func uploadError(err error) *APIError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return errValidation("file", err.Error())
	}
	switch verrs[0].Field() {
	case "Extension":
		return errValidation("file", fmt.Sprintf("unsupported file type %q (want .csv, .tsv or .xlsx)", verrs[0].Value()))
	case "Size":
		return errValidation("file", "file is empty")
	default:
		return errValidation("file", "file is required")
	}
}

type sessionResponse struct {
	*Session
	Nodes []string          `json:"nodes,omitempty"`
	Links map[string]string `json:"links"`
}

func newSessionResponse(s *Session) sessionResponse {
	base := "/api/sessions/" + s.ID.String()
	resp := sessionResponse{Session: s, Links: map[string]string{
		"self":   base,
		"report": base + "/report.html",
		"export": base + "/export.zip",
	}}
	if s.Run.Mode == analysis.ModeBatch {
		for _, g := range s.Run.Groups {
			resp.Nodes = append(resp.Nodes, g.Name)
		}
	}
	return resp
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	log := zerolog.Ctx(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			renderError(w, r, &APIError{StatusCode: http.StatusRequestEntityTooLarge, ErrorCode: "TOO_LARGE",
				Message: fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit)})
			return
		}
		renderError(w, r, errBadRequest("invalid multipart upload: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		renderError(w, r, errValidation("file", "file is required"))
		return
	}
	if err != nil {
		renderError(w, r, errBadRequest("invalid file part: "+err.Error()))
		return
	}
	defer file.Close()

	up := upload{Filename: filepath.Base(hdr.Filename), Extension: strings.ToLower(filepath.Ext(hdr.Filename)), Size: hdr.Size}
	if err := s.validate.Struct(up); err != nil {
		renderError(w, r, uploadError(err))
		return
	}
	opt, apiErr := s.runOptions(r)
	if apiErr != nil {
		renderError(w, r, apiErr)
		return
	}

	path, cleanup, err := spool(file, up.Extension)
	if err != nil {
		renderError(w, r, fmt.Errorf("spool upload: %w", err))
		return
	}
	defer cleanup()

	t, err := analysis.LoadFile(path, s.cfg.LoadOptions)
	if err != nil {
		renderError(w, r, err)
		return
	}
	t.Name = up.Filename
	log.Info().Str("file", up.Filename).Int64("bytes", up.Size).Bool("use_llm", opt.UseLLM).Msg("analysis requested")

	run, err := s.cfg.Dependencies.Analyzer.Run(r.Context(), t, opt)
	if err != nil {
		renderError(w, r, err)
		return
	}
	sess := &Session{ID: uuid.New(), CreatedAt: time.Now().UTC(), Options: opt, Run: run}
	s.sessions.Put(sess)
	log.Info().Str("session", sess.ID.String()).Str("mode", string(run.Mode)).Int("groups", len(run.Groups)).Msg("analysis stored")

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newSessionResponse(sess))
}

// runOptions overlays the form switches on the configured defaults.
func (s *Server) runOptions(r *http.Request) (analysis.Options, *APIError) {
	opt := s.cfg.Defaults
	flags := []struct {
		name string
		dst  *bool
	}{
		{"use_llm", &opt.UseLLM},
		{"adaptive_scaling", &opt.AdaptiveScaling},
		{"filter_metrics_without_limits", &opt.FilterMetricsWithoutLimits},
	}
	for _, f := range flags {
		raw := strings.TrimSpace(r.FormValue(f.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return opt, errValidation(f.name, fmt.Sprintf("%s must be true or false", f.name))
		}
		*f.dst = v
	}
	if raw := r.FormValue("priority_metrics"); strings.TrimSpace(raw) != "" {
		opt.Priority = extraction.ParsePerimeters(raw)
	}
	return opt, nil
}

// spool copies the upload to a temporary file so that XLSX input can be
// opened by path.
func spool(src multipart.File, ext string) (string, func(), error) {
	f, err := os.CreateTemp("", "riskmetrics-upload-*"+ext)
	if err != nil {
		return "", func() {}, err
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		cleanup()
		return "", func() {}, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return f.Name(), cleanup, nil
}

func (s *Server) session(r *http.Request) (*Session, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, errBadRequest("invalid session id")
	}
	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, errNotFound("session not found")
	}
	return sess, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.JSON(w, r, newSessionResponse(sess))
}

func (s *Server) latestSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Latest()
	if !ok {
		renderError(w, r, errNotFound("no analysis has been run yet"))
		return
	}
	render.JSON(w, r, newSessionResponse(sess))
}

// groupFor picks the group a report is rendered for. Batch runs default to
// the first node.
func groupFor(run *analysis.RunResult, node string) (*analysis.GroupResult, string, error) {
	if len(run.Groups) == 0 {
		return nil, "", errNotFound("run has no results")
	}
	if run.Mode != analysis.ModeBatch {
		return &run.Groups[0], run.Source, nil
	}
	g := &run.Groups[0]
	if node != "" {
		var ok bool
		if g, ok = run.Group(node); !ok {
			return nil, "", errNotFound(fmt.Sprintf("node %q not found", node))
		}
	}
	return g, fmt.Sprintf("%s - %s", run.Source, g.Name), nil
}

func (s *Server) sessionReport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	g, title, err := groupFor(sess.Run, r.URL.Query().Get("node"))
	if err != nil {
		renderError(w, r, err)
		return
	}
	b, err := report.RenderHTML(g, title, sess.Run.UseLLM, sess.Run.GeneratedAt)
	if err != nil {
		renderError(w, r, fmt.Errorf("render report: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(b)
}

func (s *Server) sessionExport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		renderError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.cfg.Dependencies.Exporter.Export(&buf, sess.Run); err != nil {
		renderError(w, r, fmt.Errorf("export: %w", err))
		return
	}
	name := utils.TimestampedName("risk_analysis", "zip", sess.CreatedAt)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
	zerolog.Ctx(r.Context()).Info().Str("session", sess.ID.String()).Int("bytes", buf.Len()).Msg("export served")
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	var req extraction.Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, errBadRequest("invalid JSON body: "+err.Error()))
		return
	}
	res, err := s.cfg.Dependencies.Extractor.Extract(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, res)
}
