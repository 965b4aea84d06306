package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/joelkehle/irb-copilot/internal/archive"
	"github.com/joelkehle/irb-copilot/internal/drafting"
	"github.com/joelkehle/irb-copilot/internal/intake"
	"github.com/joelkehle/irb-copilot/internal/irbprofile"
	"github.com/joelkehle/irb-copilot/internal/packet"
	"github.com/joelkehle/irb-copilot/internal/profileimport"
	"github.com/joelkehle/irb-copilot/internal/readiness"
	"github.com/joelkehle/irb-copilot/internal/screening"
)

// ProfileImporter runs an import. Satisfied by *profileimport.Importer.
type ProfileImporter interface {
	Import(ctx context.Context, req profileimport.Request) (profileimport.Result, error)
}

// PDFRenderer turns packet markdown into PDF bytes.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

type Config struct {
	APIKey       string
	MaxBodyBytes int64
	RateLimit    int
	RateWindow   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	return c
}

type Server struct {
	cfg       Config
	catalog   *irbprofile.Catalog
	importer  ProfileImporter
	generator *drafting.Generator
	store     *archive.Store
	renderer  PDFRenderer
	limiter   *rateLimiter
	tracer    trace.Tracer
}

// NewServer assembles the API. store and renderer may be nil; the archive
// endpoints and PDF output then report unavailable.
func NewServer(cfg Config, catalog *irbprofile.Catalog, importer ProfileImporter, generator *drafting.Generator, store *archive.Store, renderer PDFRenderer) http.Handler {
	cfg = cfg.withDefaults()
	s := &Server{
		cfg:       cfg,
		catalog:   catalog,
		importer:  importer,
		generator: generator,
		store:     store,
		renderer:  renderer,
		limiter:   newRateLimiter(cfg.RateLimit, cfg.RateWindow),
		tracer:    otel.Tracer("httpapi"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/profiles", s.handleProfiles)
	mux.HandleFunc("/api/profiles/apply", s.handleApplyProfile)
	mux.HandleFunc("/api/evaluate", s.handleEvaluate)
	mux.HandleFunc("/api/readiness", s.handleReadiness)
	mux.HandleFunc("/api/import-profile", s.handleImportProfile)
	mux.HandleFunc("/api/draft", s.handleDraft)
	mux.HandleFunc("/api/rewrite", s.handleRewrite)
	mux.HandleFunc("/api/packet", s.handlePacket)
	mux.HandleFunc("/api/archive/imports", s.handleArchiveImports)
	mux.HandleFunc("/api/archive/readiness", s.handleArchiveReadiness)
	return s.guard(mux)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, map[string]any{
			"error": map[string]any{"code": apiErr.Code, "message": apiErr.Message},
		})
		return
	}
	var fieldErr *intake.FieldError
	if errors.As(err, &fieldErr) {
		writeJSON(w, 400, map[string]any{
			"error": map[string]any{"code": CodeValidation, "message": fieldErr.Error(), "field": fieldErr.Field},
		})
		return
	}
	var reqErr *profileimport.RequestError
	if errors.As(err, &reqErr) {
		writeJSON(w, 400, map[string]any{
			"error": map[string]any{"code": CodeValidation, "message": reqErr.Error(), "field": reqErr.Field},
		})
		return
	}
	writeJSON(w, 500, map[string]any{
		"error": map[string]any{"code": CodeInternal, "message": err.Error()},
	})
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// guard enforces the API key, the rate limit, and the body-size cap on every
// route except health.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		if s.cfg.APIKey != "" && !s.authorized(r) {
			writeError(w, newError(CodeUnauthorized, "missing or invalid API key"))
			return
		}
		if !s.limiter.allow(clientKey(r)) {
			writeError(w, newError(CodeRateLimited, "too many requests, slow down"))
			return
		}
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authorized(r *http.Request) bool {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key == s.cfg.APIKey
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")) == s.cfg.APIKey
	}
	return false
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	blob, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return newError(CodePayloadSize, "request body exceeds the configured limit")
		}
		return validationError("read body: %v", err)
	}
	if len(blob) == 0 {
		blob = []byte("{}")
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return validationError("invalid JSON payload: %v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, 200, map[string]any{
		"ok":           true,
		"service":      "irb-copilot",
		"aiEnabled":    s.generator.Refines(),
		"authRequired": s.cfg.APIKey != "",
	})
}

func (s *Server) profilesPayload() map[string]any {
	return map[string]any{
		"profiles":         s.catalog.List(),
		"defaultProfileId": s.catalog.DefaultID(),
	}
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	payload := s.profilesPayload()
	payload["activeProfile"] = s.catalog.Resolve(strings.TrimSpace(r.URL.Query().Get("activeProfileId")))
	writeJSON(w, 200, payload)
}

// handleApplyProfile is the explicit step that moves an imported draft into
// the catalog. Imports themselves never mutate anything.
func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Profile *irbprofile.Profile `json:"profile"`
	}
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Profile == nil {
		writeError(w, validationError("profile is required"))
		return
	}
	if err := s.catalog.Upsert(*req.Profile); err != nil {
		writeError(w, validationError("apply profile: %v", err))
		return
	}
	payload := s.profilesPayload()
	payload["activeProfile"] = s.catalog.Resolve(req.Profile.ID)
	writeJSON(w, 200, payload)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Intake map[string]any `json:"intake"`
	}
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Intake == nil {
		writeError(w, validationError("intake is required"))
		return
	}
	form, err := intake.Normalize(req.Intake)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{
		"evaluation": screening.Evaluate(form),
		"profile":    s.catalog.Resolve(form.IRBProfileID),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ProfileID               string                `json:"profileId"`
		Intake                  map[string]any        `json:"intake"`
		Evaluation              *screening.Evaluation `json:"evaluation"`
		Drafts                  map[string]string     `json:"drafts"`
		AcknowledgedAttachments []string              `json:"acknowledgedAttachments"`
	}
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Intake == nil {
		writeError(w, validationError("intake is required"))
		return
	}
	form, err := intake.Normalize(req.Intake)
	if err != nil {
		writeError(w, err)
		return
	}
	eval := screening.Evaluate(form)
	if req.Evaluation != nil {
		eval = *req.Evaluation
	}
	profile := s.catalog.Resolve(firstNonEmpty(req.ProfileID, form.IRBProfileID))
	result := readiness.Check(profile, form, eval, req.Drafts, req.AcknowledgedAttachments)

	if s.store != nil {
		if err := s.store.RecordReadiness(r.Context(), profile.ID, result); err != nil {
			log.Printf("archive readiness snapshot: %v", err)
		}
	}
	writeJSON(w, 200, map[string]any{"readiness": result})
}

func (s *Server) handleImportProfile(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req profileimport.Request
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.importer.Import(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.store != nil {
		if err := s.store.RecordImport(r.Context(), req.OrganizationName, res); err != nil {
			log.Printf("archive import run: %v", err)
		}
	}
	payload := s.profilesPayload()
	payload["importResult"] = res
	payload["activeProfile"] = s.catalog.Resolve("")
	writeJSON(w, 200, payload)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		DocType   string         `json:"docType"`
		ProfileID string         `json:"profileId"`
		Intake    map[string]any `json:"intake"`
	}
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	form, err := intake.Normalize(req.Intake)
	if err != nil {
		writeError(w, err)
		return
	}
	profile := s.catalog.Resolve(firstNonEmpty(req.ProfileID, form.IRBProfileID))
	draft, err := s.generator.Generate(r.Context(), req.DocType, form, profile)
	if err != nil {
		var unknown *drafting.UnknownDocTypeError
		if errors.As(err, &unknown) {
			writeError(w, validationError("%v", err))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"draft": draft})
}

func (s *Server) handleRewrite(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Text string `json:"text"`
		Goal string `json:"goal"`
	}
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	text, backend, err := s.generator.Rewrite(r.Context(), req.Text, req.Goal)
	if err != nil {
		writeError(w, validationError("%v", err))
		return
	}
	writeJSON(w, 200, map[string]any{"text": text, "backend": backend})
}

// handlePacket builds the advisor packet. format=pdf renders through
// Chromium when a renderer is configured; the default is markdown.
func (s *Server) handlePacket(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		ProfileID               string            `json:"profileId"`
		Intake                  map[string]any    `json:"intake"`
		Drafts                  map[string]string `json:"drafts"`
		AcknowledgedAttachments []string          `json:"acknowledgedAttachments"`
	}
	if err := s.decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Intake == nil {
		writeError(w, validationError("intake is required"))
		return
	}
	form, err := intake.Normalize(req.Intake)
	if err != nil {
		writeError(w, err)
		return
	}
	profile := s.catalog.Resolve(firstNonEmpty(req.ProfileID, form.IRBProfileID))
	eval := screening.Evaluate(form)
	ready := readiness.Check(profile, form, eval, req.Drafts, req.AcknowledgedAttachments)
	markdown := packet.BuildMarkdown(packet.Input{
		Profile:    profile,
		Form:       form,
		Evaluation: eval,
		Readiness:  ready,
		Drafts:     req.Drafts,
		Now:        time.Now(),
	})

	if r.URL.Query().Get("format") == "pdf" {
		if s.renderer == nil {
			writeError(w, newError(CodeUnavailable, "PDF rendering is not configured"))
			return
		}
		pdf, err := s.renderer.Render(r.Context(), markdown)
		if err != nil {
			writeError(w, newError(CodeInternal, "render packet pdf: "+err.Error()))
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="irb-packet.pdf"`)
		w.WriteHeader(200)
		_, _ = w.Write(pdf)
		return
	}
	writeJSON(w, 200, map[string]any{"markdown": markdown, "readiness": ready})
}

func (s *Server) handleArchiveImports(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeError(w, newError(CodeUnavailable, "archive is not configured"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	runs, err := s.store.RecentImports(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"imports": runs})
}

func (s *Server) handleArchiveReadiness(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.store == nil {
		writeError(w, newError(CodeUnavailable, "archive is not configured"))
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	snaps, err := s.store.RecentReadiness(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"snapshots": snaps})
}

func parseInt(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
