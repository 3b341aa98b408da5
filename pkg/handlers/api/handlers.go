// Package api provides HTTP handlers for the extraction API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"media-extractor-go/pkg/appctx"
	"media-extractor-go/pkg/extractors"
	"media-extractor-go/pkg/httpclient"
	"media-extractor-go/pkg/interfaces"
	"media-extractor-go/pkg/logging"
	"media-extractor-go/pkg/services"
	"media-extractor-go/pkg/types"
)

// maxServersBody caps the POST /extract/servers request body.
const maxServersBody = 1 << 20

// Handlers contains all API handlers.
type Handlers struct {
	ctx *appctx.Context
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(ctx *appctx.Context) *Handlers {
	return &Handlers{
		ctx: ctx,
		log: ctx.Log.WithComponent("api"),
	}
}

// RegisterRoutes registers all API routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	// Public routes
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /api/info", h.handleAPIInfo)
	mux.HandleFunc("GET /favicon.ico", h.handleFavicon)

	// Extraction routes
	mux.HandleFunc("GET /extract", h.handleExtract)
	mux.HandleFunc("POST /extract/servers", h.handleExtractServers)
}

// handleIndex lists the endpoints and loaded extractors.
func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	var items strings.Builder
	for _, name := range h.extractorNames() {
		fmt.Fprintf(&items, "<li>%s</li>", html.EscapeString(name))
	}

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Media Extractor</title></head>
<body>
<h1>Media Extractor</h1>
<p>GET <code>/extract?url=&lt;embed url&gt;</code> resolves one embed URL.</p>
<p>POST <code>/extract/servers</code> with <code>{"servers":[{"name":"…","url":"…"}]}</code> resolves every mirror.</p>
<h2>Extractors</h2>
<ul>%s</ul>
</body>
</html>`, items.String())
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) handleAPIInfo(w http.ResponseWriter, r *http.Request) {
	version := h.ctx.Version
	if version == "" {
		version = "dev"
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "running",
		"version":    version,
		"extractors": h.extractorNames(),
	})
}

func (h *Handlers) handleFavicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleExtract resolves a single embed URL. Upstream headers are passed as
// h_ query parameters.
func (h *Handlers) handleExtract(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	urlStr := query.Get("url")
	if urlStr == "" {
		urlStr = query.Get("d")
	}
	if urlStr == "" {
		h.writeError(w, http.StatusBadRequest, "url parameter required")
		return
	}

	log := logging.FromContext(r.Context())
	log.Debug("extract request", "url", urlStr)

	opts := interfaces.ExtractOptions{
		Headers:       httpclient.ParseHeaderParams(query),
		ForceRefresh:  query.Get("force") == "true",
		QualityPrefix: query.Get("name"),
	}

	result, err := h.ctx.Service.ExtractWith(r.Context(), query.Get("extractor"), urlStr, opts)
	if err != nil {
		log.Error("extraction failed", "url", urlStr, "error", err)
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// serversRequest is the POST /extract/servers body.
type serversRequest struct {
	Servers      []types.ServerSource `json:"servers"`
	Headers      map[string]string    `json:"headers,omitempty"`
	ForceRefresh bool                 `json:"force_refresh,omitempty"`
}

// handleExtractServers resolves every mirror server of a title concurrently.
func (h *Handlers) handleExtractServers(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxServersBody))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var req serversRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// A bare list of servers is accepted too.
		if err := json.Unmarshal(data, &req.Servers); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
	}
	if len(req.Servers) == 0 {
		h.writeError(w, http.StatusBadRequest, "at least one server required")
		return
	}

	opts := interfaces.ExtractOptions{
		Headers:      req.Headers,
		ForceRefresh: req.ForceRefresh,
	}

	result, err := h.ctx.Service.ExtractServers(r.Context(), req.Servers, opts)
	if err != nil {
		logging.FromContext(r.Context()).Warn("no server produced a stream", "servers", len(req.Servers))
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) extractorNames() []string {
	if h.ctx.Extractors == nil {
		return nil
	}
	return h.ctx.Extractors.Names()
}

// statusFor maps extraction errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUnknownExtractor):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoSources), errors.Is(err, extractors.ErrNoStream):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
