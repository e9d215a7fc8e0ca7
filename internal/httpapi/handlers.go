package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"semchord/internal/ident"
	"semchord/internal/logger"
	"semchord/internal/node"
	"semchord/internal/ring"
	"semchord/internal/service"
)

const defaultRequired = 10

type entryJSON struct {
	Semantic []string `json:"semantic"`
	Provider string   `json:"provider"`
	QoS      []string `json:"qos,omitempty"`
}

func (e entryJSON) entry() service.Entry {
	return service.Entry{
		Record: service.Descriptor{Semantic: e.Semantic, Provider: e.Provider},
		QoS:    e.QoS,
	}
}

func toEntryJSON(e service.Entry) entryJSON {
	return entryJSON{Semantic: e.Record.Semantic, Provider: e.Record.Provider, QoS: e.QoS}
}

type lookupRequest struct {
	Semantic []string `json:"semantic"`
	Provider string   `json:"provider,omitempty"`
	QoS      []string `json:"qos,omitempty"`
	Required int      `json:"required,omitempty"`
}

type lookupResponse struct {
	Entries []entryJSON `json:"entries"`
	Hops    int         `json:"hops"`
}

type refJSON struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
	ID   string `json:"id"`
}

type ringResponse struct {
	Self        refJSON   `json:"self"`
	Predecessor *refJSON  `json:"predecessor,omitempty"`
	Successors  []refJSON `json:"successors"`
}

type healthzResponse struct {
	Status        string  `json:"status"`
	Node          string  `json:"node"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	AliveMembers  int     `json:"alive_members,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			Node:          d.Node.Self().Name,
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
		}
		if _, ok := d.Node.References().Successor(); !ok {
			resp.Status = "alone"
		}
		if d.AliveMembers != nil {
			resp.AliveMembers = d.AliveMembers()
		}
		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, resp)
	}
}

func entries(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(d.Node.DumpEntries()))
	}
}

func ringView(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs := d.Node.References()
		resp := ringResponse{
			Self:       toRefJSON(refs.Self()),
			Successors: make([]refJSON, 0),
		}
		if pred, ok := refs.Predecessor(); ok {
			p := toRefJSON(pred)
			resp.Predecessor = &p
		}
		for _, s := range refs.Successors() {
			resp.Successors = append(resp.Successors, toRefJSON(s))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func insertService(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body entryJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := d.Node.Insert(requestContext(r), body.entry()); err != nil {
			fail(d, w, "insert", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func removeService(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body entryJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		record := service.Descriptor{Semantic: body.Semantic, Provider: body.Provider}
		if err := d.Node.Remove(requestContext(r), record); err != nil {
			fail(d, w, "remove", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func lookup(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body lookupRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if body.Required <= 0 {
			body.Required = defaultRequired
		}

		desc := service.Descriptor{Semantic: body.Semantic, Provider: body.Provider}
		res, err := d.Node.Lookup(requestContext(r), desc, service.Constraints{Attributes: body.QoS}, body.Required)
		if err != nil {
			fail(d, w, "lookup", err)
			return
		}

		resp := lookupResponse{Entries: make([]entryJSON, 0, res.Len()), Hops: res.Hops}
		for _, e := range res.Entries() {
			resp.Entries = append(resp.Entries, toEntryJSON(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// requestContext carries the HTTP request id into the ring request.
func requestContext(r *http.Request) context.Context {
	return node.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
}

func fail(d Deps, w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		d.Logger.Warn("request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, code, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidDescriptor), errors.Is(err, ident.ErrInvalidSpan):
		return http.StatusBadRequest
	case errors.Is(err, node.ErrCommunication), errors.Is(err, node.ErrForwardLimit), errors.Is(err, node.ErrLookupLimit):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func toRefJSON(r ring.NodeRef) refJSON {
	return refJSON{Name: r.Name, Addr: r.Addr, ID: r.ID.String()}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
