// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package previewproxy reverse-proxies requests under /preview/{port}/ to a
// local dev server listening on that port, rewriting absolute path
// references in served HTML so sub-resource requests stay under the same
// prefix.
package previewproxy

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rigshell/agentbridge/internal/authgate"
)

// attrPattern matches href/src/action attributes whose value is an
// absolute path (starts with a single '/', not '//'). The character after
// the '/' is captured so the rewrite can put it back.
var attrPattern = regexp.MustCompile(`(href|src|action)=(["'])/([^/]|$)`)

// Handler reverse-proxies /preview/{port}/... to 127.0.0.1:{port}, issuing
// a fresh auth cookie on every response so sub-resource requests (css, js,
// images) that carry only the cookie stay authenticated.
type Handler struct {
	gate *authgate.Gate
}

// New builds a Handler.
func New(gate *authgate.Gate) *Handler {
	return &Handler{gate: gate}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.gate.Authenticated(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.gate.IssueCookie(w)

	vars := mux.Vars(r)
	port := vars["port"]
	if port == "" {
		http.Error(w, "missing port", http.StatusBadRequest)
		return
	}

	prefix := "/preview/" + port
	upstream := &url.URL{Scheme: "http", Host: "127.0.0.1:" + port}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.Director = func(req *http.Request) {
		req.URL.Scheme = upstream.Scheme
		req.URL.Host = upstream.Host
		req.Host = upstream.Host
		req.URL.Path = strings.TrimPrefix(req.URL.Path, prefix)
		if req.URL.Path == "" {
			req.URL.Path = "/"
		}
	}
	proxy.ModifyResponse = rewriteHTML(prefix)
	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		log.Printf("previewproxy: %s -> %s: %v", req.URL.Path, upstream.Host, err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	proxy.ServeHTTP(w, r)
}

// rewriteHTML re-prefixes absolute path references in HTML responses so
// that sub-resource requests route back through /preview/{port}/.
func rewriteHTML(prefix string) func(*http.Response) error {
	return func(resp *http.Response) error {
		if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
			return nil
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		rewritten := attrPattern.ReplaceAll(body, []byte("${1}=${2}"+prefix+"/${3}"))
		resp.Body = io.NopCloser(bytes.NewReader(rewritten))
		resp.ContentLength = int64(len(rewritten))
		resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
		return nil
	}
}
