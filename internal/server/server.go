package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/api"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/api/editor"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/composite"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/config"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/db"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/service"
	"github.com/Masoud-Amirdadi/Future-Fire-Stations-Planning/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host         string
	Port         string
	DataDir      string
	WebDir       string // Path to web/ directory for static files and pages
	LayersFile   string // Layer configuration file; empty uses the built-in layers
	FetchTimeout time.Duration
	Logger       *slog.Logger
}

// Server is the fire station planning map HTTP server.
type Server struct {
	config   Config
	logger   *slog.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	services *api.Services
	bus      *service.EventBus
	layers   *config.File
	renderer *templates.Renderer
	archives *composite.PMTilesFetcher
}

// New creates a new server.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	layers, err := config.Load(cfg.LayersFile)
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(layers, EngineConfig{
		DataDir:      cfg.DataDir,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("Fire Station Planning Map API", "1.0.0")
	humaConfig.Info.Description = "Raster layer catalogue, live composite weights, composite tiles and drive-time coverage statistics."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	bus := service.NewEventBus()
	weights := service.NewWeightService(engine.Registry, layers.DefaultWeights(), bus, logger)

	s := &Server{
		config:   cfg,
		logger:   logger,
		mux:      mux,
		humaAPI:  humago.New(mux, humaConfig),
		bus:      bus,
		layers:   layers,
		archives: engine.Archives,
		services: &api.Services{
			Weights:  weights,
			Layers:   service.NewLayerService(layers, cfg.DataDir, composite.CacheBuster()),
			Overlays: service.NewOverlayService(cfg.DataDir),
			Tiles:    &composite.Producer{Renderer: engine.Renderer, Registry: engine.Registry, Weights: weights},
		},
	}

	s.renderer, err = loadTemplates(cfg.WebDir)
	if err != nil {
		return nil, err
	}

	// Coverage statistics are optional; the map works without them.
	if conn, err := db.Open(db.Config{DataDir: cfg.DataDir, DBName: "firemap"}); err != nil {
		logger.Warn("database unavailable", "err", err)
	} else if coverage, err := service.NewCoverageService(context.Background(), conn, logger); err != nil {
		logger.Warn("coverage statistics unavailable", "err", err)
		conn.Close()
	} else {
		s.db = conn
		s.services.Coverage = coverage
	}

	s.routes()
	return s, nil
}

// loadTemplates prefers fragments from the web directory over the built-in
// ones.
func loadTemplates(webDir string) (*templates.Renderer, error) {
	if webDir != "" {
		dir := filepath.Join(webDir, "templates", "fragments")
		if _, err := os.Stat(dir); err == nil {
			return templates.NewFromDir(dir)
		}
	}
	return templates.New()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Close closes server resources.
func (s *Server) Close() error {
	errs := []error{s.services.Layers.Close(), s.archives.Close()}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}
	return errors.Join(errs...)
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(s.services))
	api.NewInfoHandler(s.config.DataDir, s.db != nil, len(s.layers.Composites())).RegisterRoutes(s.humaAPI)

	// Register Editor SSE routes using Huma + Datastar SDK
	editor.NewWeightsHandler(s.services.Weights, s.renderer).RegisterRoutes(s.humaAPI)
	editor.NewEventHandler(s.bus).RegisterRoutes(s.humaAPI)

	// Raster tiles and GeoJSON read by the map widget directly
	if s.config.DataDir != "" {
		s.mux.Handle("/data/", http.StripPrefix("/data/", cors(http.FileServer(http.Dir(s.config.DataDir)))))
	}

	// Static files and pages
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.mux.HandleFunc("/viewer", s.handleViewer)
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.config.WebDir != "" {
		s.handleViewer(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "firemap",
		"status":  "running",
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "viewer.html")
	http.ServeFile(w, r, templatePath)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
