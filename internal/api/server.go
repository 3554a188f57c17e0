// Package api serves the local status and diagnostics HTTP API. The
// config-mode webapp polls it for mode and countdown; installers use
// it to check process state and recent logs without journal access.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/smazurov/nodewarden/internal/api/models"
	"github.com/smazurov/nodewarden/internal/logging"
	"github.com/smazurov/nodewarden/internal/process"
	"github.com/smazurov/nodewarden/internal/supervisor"
	"github.com/smazurov/nodewarden/internal/version"
)

// StatusSource reports the current mode snapshot. Implemented by
// supervisor.Supervisor.
type StatusSource interface {
	Status() supervisor.Status
}

// ProcessLister reports running supervised processes. Implemented by
// process.Supervisor.
type ProcessLister interface {
	Running() []process.Info
}

// Options configures the API server.
type Options struct {
	AuthUsername string
	AuthPassword string

	StatusSource   StatusSource
	Processes      ProcessLister
	MetricsHandler http.Handler // Optional Prometheus metrics handler
}

// Server is the Huma v2 status API server.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer creates the API server using Go 1.22+ native routing.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()

	corsConfig := DefaultCORSConfig()
	AddCORSHandler(mux, corsConfig)

	config := huma.DefaultConfig("NodeWarden API", version.Version)
	config.Info.Description = "Status and diagnostics API for the device supervisor"
	// Empty servers list will make OpenAPI use relative paths, working with any host
	config.Servers = []*huma.Server{}

	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(NewCORSMiddleware(corsConfig))
	api.UseMiddleware(HTTPLoggingMiddleware)

	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Prometheus scrapes bypass Huma; register directly on the mux.
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	server.registerRoutes()

	return server
}

// basicAuthMiddleware creates middleware for HTTP basic authentication.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		// Skip auth for operations without security requirements
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		const prefix = "Basic "
		if !strings.HasPrefix(authHeader, prefix) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="NodeWarden API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="NodeWarden API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
			return
		}

		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="NodeWarden API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// GetMux returns the underlying HTTP ServeMux for additional setup.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// Start starts the HTTP server on the specified address.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting status API server", "addr", addr)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}

	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down. Connections are closed immediately; the
// process is either rebooting or being restarted by systemd.
func (s *Server) Stop() error {
	s.logger.Info("Stopping status API server")

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all API endpoints.
func (s *Server) registerRoutes() {
	// Health check endpoint - no auth required
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check supervisor health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "Supervisor is running",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Current device mode, inactivity countdown, and running processes",
		Tags:        []string{"status"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		data := models.StatusData{
			Mode:      string(supervisor.ModeIdle),
			Processes: []models.ProcessInfo{},
			Version:   version.Get(),
		}
		if s.options.StatusSource != nil {
			status := s.options.StatusSource.Status()
			data.Mode = string(status.Mode)
			data.CountdownSeconds = status.CountdownSeconds
		}
		if s.options.Processes != nil {
			for _, info := range s.options.Processes.Running() {
				data.Processes = append(data.Processes, models.ProcessInfo{
					ID:        info.ID,
					PID:       info.PID,
					Command:   info.Command,
					StartedAt: info.StartedAt,
					LogFile:   info.LogFile,
				})
			}
		}
		return &models.StatusResponse{Body: data}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Recent logs",
		Description: "Recent log entries from the in-memory flight recorder",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, input *struct {
		Count int `query:"count" default:"100" minimum:"1" maximum:"500" doc:"Maximum number of entries to return"`
	}) (*models.LogsResponse, error) {
		entries := []models.LogEntry{}
		if recorder := logging.GetRecorder(); recorder != nil {
			snapshot := recorder.Snapshot()
			if len(snapshot) > input.Count {
				snapshot = snapshot[len(snapshot)-input.Count:]
			}
			for _, entry := range snapshot {
				entries = append(entries, models.LogEntry{
					Timestamp:  entry.Timestamp,
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				})
			}
		}
		return &models.LogsResponse{
			Body: models.LogsData{Entries: entries, Count: len(entries)},
		}, nil
	})
}

// withAuth returns the security requirement for authenticated routes.
func withAuth() []map[string][]string {
	return []map[string][]string{{"basicAuth": {}}}
}
