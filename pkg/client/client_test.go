// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_SendsBearerTokenAndParsesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"id":"abc123","cwd":"/tmp","status":"running"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("test-token"))
	sessions, err := c.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "abc123", sessions[0].ID)
	assert.Equal(t, SessionStatus("running"), sessions[0].Status)
}

func TestPorts_ParsesList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"port":3456,"ipv6":false}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	ports, err := c.Ports(context.Background())
	require.NoError(t, err)
	require.Len(t, ports, 1)
	assert.Equal(t, 3456, ports[0].Port)
}

func TestDirs_EscapesPathQueryParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/a b", r.URL.Query().Get("path"))
		w.Write([]byte(`{"data":[{"name":"sub","path":"/a b/sub"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	dirs, err := c.Dirs(context.Background(), "/a b")
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.Equal(t, "sub", dirs[0].Name)
}

func TestGet_ReturnsAPIErrorFromEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"missing token"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Sessions(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}
