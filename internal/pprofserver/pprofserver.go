// Package pprofserver exposes the runtime profiles of long running commands on the loopback interface.
package pprofserver

import (
	"context"
	"fmt"
	"github.com/myrjola/novella/internal/errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"
)

const readHeaderTimeout = 5 * time.Second

func Handle(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
}

// Launch serves pprof at the IPv6 loopback address ::1 and the given port, e.g. ":6060", in the background.
// Close the returned server when done.
func Launch(ctx context.Context, port string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	Handle(mux)
	srv := &http.Server{
		Addr:              fmt.Sprintf("[::1]%s", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		logger.LogAttrs(ctx, slog.LevelInfo, "starting pprof server", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogAttrs(ctx, slog.LevelError, "pprof server stopped", errors.SlogError(err))
		}
	}()
	return srv
}
