package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog/v2"

	"github.com/carv-ics-forth/tfserving-bench/pkg/profile"
)

// Server is an interface for providing http service for the benchmark process
type Server interface {
	Run(ctx context.Context)
	Handler() http.Handler
}

// stubServer handles requests about the benchmark process itself, like
// profiling, metrics and healthz. It never proxies to the model server.
type stubServer struct {
	server *http.Server
}

// NewStubServer creates a Server listening on addr
func NewStubServer(addr string, metricsHandler http.Handler) Server {
	c := mux.NewRouter()
	registerHandlers(c, metricsHandler)
	return &stubServer{
		server: &http.Server{
			Addr:           addr,
			Handler:        c,
			MaxHeaderBytes: 1 << 20,
		},
	}
}

// Run serves until ctx is done
func (s *stubServer) Run(ctx context.Context) {
	go func() {
		klog.Infof("stub server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.Errorf("stub server on %s exited, %v", s.server.Addr, err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			klog.Errorf("stub server shutdown, %v", err)
		}
	}()
}

func (s *stubServer) Handler() http.Handler {
	return s.server.Handler
}

// registerHandlers registers handlers for the stub server, like profiling, healthz.
func registerHandlers(c *mux.Router, metricsHandler http.Handler) {
	// register handler for health check
	c.HandleFunc("/v1/healthz", healthz).Methods("GET")

	// register handler for profile
	profile.Install(c, profile.DefaultPrefix)

	// register handler for metrics
	if metricsHandler != nil {
		c.Handle("/metrics", metricsHandler)
	}
}

// healthz returns ok for healthz request
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}
