// Package server exposes a session over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/clusterlens/internal/ai"
	"github.com/KaramelBytes/clusterlens/internal/assistant"
	"github.com/KaramelBytes/clusterlens/internal/dataset"
	"github.com/KaramelBytes/clusterlens/internal/export"
	"github.com/KaramelBytes/clusterlens/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// MaxUploadBytes bounds dataset uploads unless Config.MaxUploadBytes is set.
const MaxUploadBytes = 32 << 20

// Config wires the optional assistant and upload parsing.
type Config struct {
	Runtime        ai.Runtime
	Assistant      assistant.Options
	Upload         dataset.Options
	MaxUploadBytes int64
}

type Server struct {
	sess *session.Session
	cfg  Config
	log  *slog.Logger
	m    *metrics
	mux  *chi.Mux
}

// New builds the router around sess. A nil logger uses slog.Default.
func New(sess *session.Session, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Assistant.Logger == nil {
		cfg.Assistant.Logger = log
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = MaxUploadBytes
	}
	s := &Server{sess: sess, cfg: cfg, log: log, m: newMetrics()}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.m.instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", s.m.handler())
	r.Post("/dataset", s.upload)
	r.Put("/features", s.selectFeatures)
	r.Post("/cluster", s.cluster)
	r.Get("/profile", s.profile)
	r.Route("/exports", func(r chi.Router) {
		r.Get("/", s.manifest)
		r.Get("/{cluster}", s.exportCSV)
	})
	r.Get("/charts/{feature}/{cluster}", s.chart)
	r.Post("/ask", s.ask)
	return r
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr, "session", s.sess.ID)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"status": "ok", "session": s.sess.ID}
	if ds := s.sess.Dataset(); ds != nil {
		data["dataset"] = ds.Name
	}
	ok(w, r, "ok", data)
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	name := r.URL.Query().Get("name")
	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			fail(w, r, readStatus(err), fmt.Errorf("read multipart field file: %w", err))
			return
		}
		defer f.Close()
		body = f
		if name == "" {
			name = hdr.Filename
		}
	}
	if name == "" {
		name = "upload.csv"
	}
	data, err := io.ReadAll(body)
	if err != nil {
		fail(w, r, readStatus(err), fmt.Errorf("read upload: %w", err))
		return
	}

	var ds *dataset.Dataset
	if strings.HasSuffix(strings.ToLower(name), ".xlsx") {
		ds, err = dataset.ReadXLSX(data, name, s.cfg.Upload)
	} else {
		ds, err = dataset.ReadCSV(bytes.NewReader(data), name, s.cfg.Upload)
	}
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	s.sess.Load(ds)
	ok(w, r, "dataset loaded", ds.Summarize())
}

// readStatus is 413 for bodies over the upload limit and 400 otherwise.
func readStatus(err error) int {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

type featuresRequest struct {
	Features []string `json:"features"`
}

func (s *Server) selectFeatures(w http.ResponseWriter, r *http.Request) {
	var req featuresRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if err := s.sess.Select(req.Features); err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	ok(w, r, "features selected", map[string]any{
		"selection": s.sess.Selection(),
		"stale":     s.sess.Stale(),
	})
}

type clusterRequest struct {
	K int `json:"k"`
}

type clusterResponse struct {
	*session.Result
	Cached bool `json:"cached"`
}

func (s *Server) cluster(w http.ResponseWriter, r *http.Request) {
	var req clusterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.K < 0 {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("k must be positive, got %d", req.K))
		return
	}
	res, cached, err := s.sess.ClusterK(req.K)
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	outcome := "miss"
	if cached {
		outcome = "hit"
	}
	s.m.runs.WithLabelValues(outcome).Inc()
	s.m.k.Set(float64(res.K))
	ok(w, r, "clustering complete", clusterResponse{Result: res, Cached: cached})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	p, err := s.sess.Profile()
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	ok(w, r, "profile", p)
}

func (s *Server) manifest(w http.ResponseWriter, r *http.Request) {
	_, m, err := s.sess.Export()
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	ok(w, r, "exports", m)
}

// clusterParam parses the 1-based {cluster} path parameter.
func clusterParam(r *http.Request) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, "cluster"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("cluster must be a positive number, got %q", chi.URLParam(r, "cluster"))
	}
	return n, nil
}

func (s *Server) exportCSV(w http.ResponseWriter, r *http.Request) {
	n, err := clusterParam(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err)
		return
	}
	tables, _, err := s.sess.Export()
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	b, found := tables[n-1]
	if !found {
		fail(w, r, http.StatusNotFound, fmt.Errorf("cluster %d: %w", n, errNotFound))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(n-1)))
	_, _ = w.Write(b)
}

func (s *Server) chart(w http.ResponseWriter, r *http.Request) {
	n, err := clusterParam(r)
	if err != nil {
		fail(w, r, http.StatusBadRequest, err)
		return
	}
	feature := chi.URLParam(r, "feature")
	if ds := s.sess.Dataset(); ds != nil {
		if _, found := ds.Column(feature); !found {
			fail(w, r, http.StatusNotFound, fmt.Errorf("feature %q: %w", feature, errNotFound))
			return
		}
	}
	png, err := s.sess.Chart(feature, n-1)
	if err != nil {
		fail(w, r, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	a, err := assistant.Ask(r.Context(), s.cfg.Runtime, s.sess.Dataset(), req.Question, s.cfg.Assistant)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadGateway
		}
		s.m.asks.WithLabelValues("error").Inc()
		s.log.Warn("assistant request failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		fail(w, r, code, err)
		return
	}
	s.m.asks.WithLabelValues("ok").Inc()
	ok(w, r, "answer", a)
}
