// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package api exposes a running polling engine over HTTP.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

// Engine is the part of *master.Engine served over HTTP
type Engine interface {
	Snapshot() master.Snapshot
	Registry() *master.Registry
	Channels() *simplebinary.ChannelSet
	Command(ctx context.Context, channelID string, v simplebinary.Value) error
}

type server struct {
	engine Engine
	log    *slog.Logger
}

// NewRouter builds the HTTP routes:
//
//	GET  /health
//	GET  /status          engine snapshot as JSON
//	GET  /snapshot        engine snapshot as versioned CBOR
//	GET  /devices
//	GET  /devices/{id}
//	GET  /channels
//	GET  /channels/{id}
//	POST /channels/{id}   queue a command, body is the value text
//
// Access lines go to accessLog in combined log format when it is non-nil.
func NewRouter(engine Engine, log *slog.Logger, accessLog io.Writer) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	s := &server{engine: engine, log: log.With("component", "api")}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/status", s.status).Methods(http.MethodGet)
	r.HandleFunc("/snapshot", s.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/devices", s.listDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/{id:[0-9]+}", s.getDevice).Methods(http.MethodGet)
	r.HandleFunc("/channels", s.listChannels).Methods(http.MethodGet)
	r.HandleFunc("/channels/{id}", s.getChannel).Methods(http.MethodGet)
	r.Handle("/channels/{id}", handlers.ContentTypeHandler(
		http.HandlerFunc(s.postCommand), "text/plain", "application/json",
	)).Methods(http.MethodPost)
	r.Use(requestID)

	var h http.Handler = r
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.log}))(h)
}

// requestID propagates or assigns the correlation id
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(RequestIDHeader, id)
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type recoveryLogger struct {
	log *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error("handler panic", "panic", v)
}
