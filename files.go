/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

func humanReadableSize(bytes int64) string {
	const unit int64 = 1000
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := unit, 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB",
		float64(bytes)/float64(div),
		"kMGTPE"[exp])
}

type countingWriter struct {
	http.ResponseWriter
	written int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

// serveCards serves the image files of the card packs under root.
func serveCards(cfg *Config, fs afero.Fs, root string) httprouter.Handle {
	files := http.StripPrefix(cfg.prefix+"/cards", http.FileServer(afero.NewHttpFs(fs).Dir(root)))

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		if strings.HasSuffix(p.ByName("filepath"), "/") {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=86400")
		securityHeaders(cfg, w)

		cw := &countingWriter{ResponseWriter: w}
		files.ServeHTTP(cw, r)

		cfg.log.Info("SERVE: Card image",
			zap.String("path", p.ByName("filepath")),
			zap.String("size", humanReadableSize(cw.written)),
			zap.String("ip", realIP(r)),
			zap.Duration("duration", time.Since(startTime).Round(time.Microsecond)),
		)
	}
}
