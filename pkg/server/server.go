package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"

	"github.com/Juliapixel/projeto-goodwe/pkg/aggregate"
	"github.com/Juliapixel/projeto-goodwe/pkg/controller"
	"github.com/Juliapixel/projeto-goodwe/pkg/ess"
	"github.com/Juliapixel/projeto-goodwe/pkg/log"
	"github.com/Juliapixel/projeto-goodwe/pkg/metrics"
	"github.com/Juliapixel/projeto-goodwe/pkg/storage"
	"github.com/Juliapixel/projeto-goodwe/pkg/types"
)

// plugController is the part of the plug client the web layer drives.
type plugController interface {
	QueryState(ctx context.Context) (types.PlugQueryResult, error)
	SetState(ctx context.Context, on bool) (types.PlugSetResult, error)
	List(ctx context.Context) ([]types.PlugInfo, error)
	DeviceID() string
}

// loopStatus reports the automation loop state.
type loopStatus interface {
	Status() controller.Status
}

// Server exposes the reporting, telemetry and plug control endpoints.
type Server struct {
	sys      ess.System
	engine   *aggregate.Engine
	plug     plugController
	override *controller.Override
	loop     loopStatus
	storage  storage.Database

	listenAddr string
	httpServer *http.Server

	verifiers  map[string]tokenVerifier
	bypassAuth bool
	corsOrigin string
	serverName string
}

// Deps are the collaborators the Server serves requests from.
type Deps struct {
	System   ess.System
	Engine   *aggregate.Engine
	Plug     plugController
	Override *controller.Override
	Loop     loopStatus
	Storage  storage.Database
}

func newServer(d Deps) *Server {
	return &Server{
		sys:        d.System,
		engine:     d.Engine,
		plug:       d.Plug,
		override:   d.Override,
		loop:       d.Loop,
		storage:    d.Storage,
		serverName: "goodwe",
	}
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(d Deps) *Server {
	srv := newServer(d)
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	hs256Secret := lflag.String("auth-hs256-secret", "", "Shared secret used to verify HS256 bearer tokens")
	oidcIssuer := lflag.String("oidc-issuer", "", "OIDC issuer whose ID tokens are accepted as bearer tokens")
	oidcAudience := lflag.String("oidc-audience", "", "Audience (client ID) required in OIDC ID tokens")
	corsOrigin := lflag.String("http-cors-origin", "", "Origin allowed to call the API from a browser, empty disables CORS")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.corsOrigin = *corsOrigin
		srv.verifiers = map[string]tokenVerifier{}
		if *hs256Secret != "" {
			if len(*hs256Secret) < 32 {
				log.Ctx(context.Background()).Error("auth-hs256-secret must be at least 32 characters")
				os.Exit(1)
			}
			srv.verifiers["hs256"] = hs256Verifier([]byte(*hs256Secret), time.Now)
		}
		if *oidcIssuer != "" {
			if *oidcAudience == "" {
				log.Ctx(context.Background()).Error("oidc-audience is required with oidc-issuer")
				os.Exit(1)
			}
			provider, err := oidc.NewProvider(context.Background(), *oidcIssuer)
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", *oidcIssuer), slog.Any("error", err))
				os.Exit(1)
			}
			srv.verifiers["oidc"] = oidcVerifier(provider.Verifier(&oidc.Config{ClientID: *oidcAudience}))
		}
		if len(srv.verifiers) == 0 {
			log.Ctx(context.Background()).Warn("no bearer token verifier configured, control endpoints are unauthenticated")
			srv.bypassAuth = true
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/report", s.handleReport)
	apiMux.HandleFunc("GET /api/report/rolling", s.handleRollingReport)
	apiMux.HandleFunc("GET /api/consumption", s.handleConsumption)
	apiMux.HandleFunc("GET /api/savings", s.handleSavings)
	apiMux.HandleFunc("GET /api/savings/week", s.handleSavingsWeek)
	apiMux.HandleFunc("GET /api/battery", s.handleBattery)
	apiMux.HandleFunc("GET /api/load", s.handleLoad)
	apiMux.HandleFunc("GET /api/generation", s.handleGeneration)
	apiMux.HandleFunc("GET /api/curves", s.handleCurves)
	apiMux.HandleFunc("GET /api/inverter/column", s.handleInverterColumn)
	apiMux.HandleFunc("GET /api/tomada/get", s.handleGetPlug)
	apiMux.HandleFunc("GET /api/tomada/list", s.handleListPlugs)
	apiMux.Handle("POST /api/tomada/set", s.authMiddleware(http.HandlerFunc(s.handleSetPlug)))
	apiMux.HandleFunc("GET /api/tomada/get_economia", s.handleGetEconomy)
	apiMux.Handle("POST /api/tomada/set_economia", s.authMiddleware(http.HandlerFunc(s.handleSetEconomy)))
	apiMux.HandleFunc("GET /api/automation/status", s.handleAutomationStatus)
	apiMux.Handle("GET /api/history/actions", s.authMiddleware(http.HandlerFunc(s.handleHistoryActions)))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestMiddleware(apiMux))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", metrics.Handler())
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// writeError maps validation errors to 400 and everything else to 500.
func writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		log.Ctx(ctx).WarnContext(ctx, msg, slog.Any("error", err))
		writeJSONError(w, verr.Error(), http.StatusBadRequest)
		return
	}
	log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
	writeJSONError(w, msg, http.StatusInternalServerError)
}

// writeRaw passes an upstream body and status through untouched.
func writeRaw(w http.ResponseWriter, raw []byte, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(raw); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
