// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package authgate

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesOverride(t *testing.T) {
	g := New("fixed-token")
	assert.Equal(t, "fixed-token", g.Token())
}

func TestNew_GeneratesEightHexChars(t *testing.T) {
	g := New("")
	assert.Len(t, g.Token(), 8)
}

func TestCheck(t *testing.T) {
	g := New("secret")
	assert.True(t, g.Check("secret"))
	assert.False(t, g.Check("wrong"))
	assert.False(t, g.Check(""))
}

func TestAuthenticated_BearerHeader(t *testing.T) {
	g := New("secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	assert.True(t, g.Authenticated(req))
}

func TestAuthenticated_Cookie(t *testing.T) {
	g := New("secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "secret"})
	assert.True(t, g.Authenticated(req))
}

func TestAuthenticated_QueryToken(t *testing.T) {
	g := New("secret")
	req := httptest.NewRequest(http.MethodGet, "/preview/3000/?token=secret", nil)
	assert.True(t, g.Authenticated(req))
}

func TestAuthenticated_Rejected(t *testing.T) {
	g := New("secret")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, g.Authenticated(req))
}

func TestMiddleware_RejectsUnauthenticated(t *testing.T) {
	g := New("secret")
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_AllowsAuthenticated(t *testing.T) {
	g := New("secret")
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIssueCookie(t *testing.T) {
	g := New("secret")
	rec := httptest.NewRecorder()
	g.IssueCookie(rec)

	resp := rec.Result()
	require.Len(t, resp.Cookies(), 1)
	assert.Equal(t, "secret", resp.Cookies()[0].Value)
}
