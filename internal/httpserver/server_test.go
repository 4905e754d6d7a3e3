// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/mpqtt/internal/config"
	appmetrics "github.com/Thermoquad/mpqtt/internal/metrics"
	"github.com/Thermoquad/mpqtt/internal/poller"
	"github.com/Thermoquad/mpqtt/pkg/pi30/commands"
)

func newTestServer(ready bool) (*Server, *poller.Store) {
	cfg := config.HTTPConfig{Addr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second}
	reg := appmetrics.NewRegistry()
	appmetrics.New(reg)
	store := poller.NewStore()
	return New(cfg, appmetrics.Handler(reg), store, func() bool { return ready }), store
}

func get(s *Server, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestHealthzReadyzMetrics(t *testing.T) {
	srv, _ := newTestServer(true)

	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)

	rr := get(srv, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "mpqtt_reconnect_total")
}

func TestReadyzNotReady(t *testing.T) {
	srv, _ := newTestServer(false)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)
}

func TestReadings(t *testing.T) {
	srv, store := newTestServer(true)

	rr := get(srv, "/api/readings")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	store.Set("QMOD", commands.ModeBattery)
	store.Set("QPI", 30)

	rr = get(srv, "/api/readings")
	require.Equal(t, http.StatusOK, rr.Code)
	var all []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.Equal(t, "QMOD", all[0]["command"])
	assert.Equal(t, "battery", all[0]["value"])

	rr = get(srv, "/api/readings/qpi")
	require.Equal(t, http.StatusOK, rr.Code)
	var one map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &one))
	assert.Equal(t, 30.0, one["value"])

	assert.Equal(t, http.StatusNotFound, get(srv, "/api/readings/qpiri").Code)
}
