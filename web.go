package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/Seednode/storyteller/internal/session"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("storyteller v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		cfg.log.Info("SERVE: Version page",
			zap.String("size", humanReadableSize(int64(written))),
			zap.String("ip", realIP(r)),
			zap.Duration("duration", time.Since(startTime).Round(time.Microsecond)),
		)
	}
}

func newRouter(cfg *Config, lobby *session.Lobby, identity *session.Identity, errs chan<- error) *httprouter.Router {
	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		cfg.log.Error("SERVE: Handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", i))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, identity, errs))

	mux.GET(cfg.prefix+"/app.css", serveStatic(cfg, "text/css; charset=utf-8", appCSS, errs))

	mux.GET(cfg.prefix+"/app.js", serveStatic(cfg, "text/javascript; charset=utf-8", appJS, errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, errs))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	registerStoryteller(cfg, mux, lobby, identity)

	return mux
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	cfg.log.Info("START: storyteller",
		zap.String("version", releaseVersion),
		zap.String("node", cfg.nodeID),
		zap.Stringer("rules", cfg.settings().RuleSet),
	)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	lobby, closeBackend, err := newLobby(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	errs := make(chan error, 64)
	go func() {
		for {
			select {
			case err := <-errs:
				cfg.log.Warn("SERVE: Failed to write response", zap.Error(err))
			case <-ctx.Done():
				return
			}
		}
	}()

	mux := newRouter(cfg, lobby, session.NewIdentity(cfg.sessionSecret), errs)

	if cfg.packs != "" {
		cfg.log.Info("SERVE: Serving card images", zap.String("dir", cfg.packs))
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           mux,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	failed := make(chan error, 1)
	go func() {
		var err error
		cfg.log.Info("SERVE: Listening", zap.String("url", cfg.scheme()+"://"+srv.Addr+cfg.prefix+"/"))
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-failed:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	cfg.log.Info("SERVE: Stopped")

	return nil
}
