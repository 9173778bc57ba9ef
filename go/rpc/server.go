// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package rpc

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/rs/cors"
)

const (
	maxRequestContentLength = 5 * 1024 * 1024
	contentType             = "application/json"
	shutdownTimeout         = 5 * time.Second
)

type httpHandler struct {
	dispatcher *Dispatcher
}

// NewHTTPHandler serves JSON-RPC requests posted over HTTP. Cross origin
// requests are permitted for the given origins; "*" permits all of them.
func NewHTTPHandler(dispatcher *Dispatcher, allowedOrigins []string) http.Handler {
	var handler http.Handler = &httpHandler{dispatcher: dispatcher}
	if len(allowedOrigins) == 0 {
		return handler
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodGet},
		MaxAge:         600,
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(handler)
}

func (h *httpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// GET requests without body serve as health checks
	if r.Method == http.MethodGet && r.ContentLength == 0 {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestContentLength))
	if err != nil {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if res := h.dispatcher.HandleMessage(r.Context(), body); res != nil {
		w.Write(res)
	}
}

// Serve accepts connections on the given listener until the context is
// canceled. Requests in flight are given a grace period to complete.
func Serve(ctx context.Context, listener net.Listener, handler http.Handler, logger log.Logger) error {
	if logger == nil {
		logger = log.Root()
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Failed to shut down HTTP server", "err", err)
		}
	}()
	logger.Info("HTTP server started", "endpoint", "http://"+listener.Addr().String())
	err := server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		logger.Info("HTTP server stopped")
		return nil
	}
	return err
}
