// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Thermoquad/simplebinary/pkg/master"
	"github.com/Thermoquad/simplebinary/pkg/simplebinary"
)

const maxCommandBody = 1024

// ChannelView is the JSON form of a configured channel and its last value
type ChannelView struct {
	ID      string     `json:"id"`
	Kind    string     `json:"kind"`
	State   string     `json:"state,omitempty"`
	Command string     `json:"command,omitempty"`
	Value   *string    `json:"value,omitempty"`
	Updated *time.Time `json:"updated,omitempty"`
}

type commandRequest struct {
	Value string `json:"value"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: r.Header.Get(RequestIDHeader)})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

func (s *server) snapshot(w http.ResponseWriter, r *http.Request) {
	data, err := master.EncodeSnapshot(s.engine.Snapshot())
	if err != nil {
		s.log.Error("encoding snapshot", "error", err)
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	_, _ = w.Write(data)
}

func (s *server) listDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Registry().Snapshot())
}

func (s *server) getDevice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 8)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, errors.New("device id must be 0-255"))
		return
	}
	dev, ok := s.engine.Registry().Lookup(uint8(id))
	if !ok {
		writeError(w, r, http.StatusNotFound, errors.New("unknown device"))
		return
	}
	writeJSON(w, http.StatusOK, dev.Info())
}

func (s *server) view(ch *simplebinary.Channel) ChannelView {
	v := ChannelView{ID: ch.ID, Kind: ch.Kind.String()}
	if ch.CommandAddress != nil {
		v.Command = ch.CommandAddress.String()
	}
	if ch.StateAddress == nil {
		return v
	}
	v.State = ch.StateAddress.String()
	if dev, ok := s.engine.Registry().Lookup(ch.StateAddress.DeviceID); ok {
		if cv, ok := dev.Value(ch.ID); ok {
			text := cv.Value.String()
			v.Value = &text
			v.Updated = &cv.Updated
		}
	}
	return v
}

func (s *server) listChannels(w http.ResponseWriter, _ *http.Request) {
	all := s.engine.Channels().All()
	out := make([]ChannelView, 0, len(all))
	for _, ch := range all {
		out = append(out, s.view(ch))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getChannel(w http.ResponseWriter, r *http.Request) {
	ch := s.engine.Channels().Get(mux.Vars(r)["id"])
	if ch == nil {
		writeError(w, r, http.StatusNotFound, errors.New("unknown channel"))
		return
	}
	writeJSON(w, http.StatusOK, s.view(ch))
}

// postCommand accepts either a text/plain body holding the value or
// {"value": "..."} as JSON
func (s *server) postCommand(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ch := s.engine.Channels().Get(id)
	if ch == nil {
		writeError(w, r, http.StatusNotFound, errors.New("unknown channel"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	text := string(body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req commandRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err)
			return
		}
		text = req.Value
	}

	v, err := simplebinary.ParseValue(ch, text)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := s.engine.Command(r.Context(), id, v); err != nil {
		writeError(w, r, commandStatus(err), err)
		return
	}
	s.log.Info("command queued", "channel", id, "value", v.String(),
		"request_id", r.Header.Get(RequestIDHeader))
	writeJSON(w, http.StatusAccepted, map[string]string{"channel": id, "value": v.String()})
}

func commandStatus(err error) int {
	var unknown *master.UnknownChannelIDError
	switch {
	case errors.As(err, &unknown):
		return http.StatusNotFound
	case errors.Is(err, master.ErrDiscarded):
		return http.StatusConflict
	case errors.Is(err, master.ErrDisposed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
