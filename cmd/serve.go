package main

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicworks/roster-cli/internal/geojob"
	"github.com/civicworks/roster-cli/internal/match"
	"github.com/civicworks/roster-cli/internal/roll"
	"github.com/civicworks/roster-cli/internal/store"
)

var servePort int

// serverEnv bundles what the HTTP handlers need. Split out so router
// tests can wire fakes without a config.
type serverEnv struct {
	store    store.Store
	engine   *geojob.Engine
	importer *roll.Importer
	matcher  *match.Matcher
	token    string
	origins  []string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		env := &serverEnv{
			store:    st,
			engine:   initEngine(st),
			importer: roll.NewImporter(st, roll.WithBatchSize(cfg.Import.BatchSize), roll.WithMaxErrors(cfg.Import.MaxErrors)),
			matcher:  match.NewMatcher(st, match.WithUpdateBatchSize(cfg.Match.UpdateBatchSize)),
			token:    cfg.Server.APIToken,
			origins:  cfg.Server.AllowedOrigins,
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let in-flight geocoding loops checkpoint before exiting.
		env.engine.Wait()
		return nil
	},
}

func newRouter(env *serverEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: env.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(requireToken(env.token))

		r.Post("/versions/{id}/import", env.handleImport)
		r.Post("/versions/{id}/match", env.handleMatch)
		r.Post("/versions/{id}/geocode", env.handleGeocodeStart)
		r.Get("/jobs/{id}", env.handleJobGet)
		r.Post("/jobs/{id}/pause", env.handleJobPause)
		r.Post("/jobs/{id}/resume", env.handleJobResume)
	})

	return r
}

// requireToken is the single capability check on the admin surface: every
// route behind it needs the shared bearer token. An empty configured
// token disables those routes instead of leaving them open.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeError(w, http.StatusServiceUnavailable, "admin API disabled: no api_token configured")
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (env *serverEnv) handleImport(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty import body")
		return
	}

	result, err := env.importer.ImportCSV(r.Context(), versionID, string(body))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (env *serverEnv) handleMatch(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")

	result, err := env.matcher.Run(r.Context(), versionID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (env *serverEnv) handleGeocodeStart(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "id")

	// The job loop detaches from the request; the response is the handle
	// callers poll via GET /jobs/{id}.
	job, err := env.engine.Start(r.Context(), versionID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (env *serverEnv) handleJobGet(w http.ResponseWriter, r *http.Request) {
	job, err := env.store.GetGeocodeJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (env *serverEnv) handleJobPause(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := env.engine.Pause(r.Context(), jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	job, err := env.store.GetGeocodeJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (env *serverEnv) handleJobResume(w http.ResponseWriter, r *http.Request) {
	job, err := env.engine.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
