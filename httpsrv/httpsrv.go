// Package httpsrv exposes a session.Session and dispatch.Dispatcher over
// HTTP, in the same generic-device-wrapper style the rest of this
// codebase's HTTP surfaces use: a RouteTable of method+path to handler,
// bound onto a chi.Router, with small single-field JSON payload types
// instead of bespoke per-endpoint structs.
package httpsrv

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi"
)

// FloatT carries a single float64 value, the request/response body shape
// for every endpoint that reads or writes one number.
type FloatT struct {
	F64 float64 `json:"f64"`
}

// BoolT carries a single bool value.
type BoolT struct {
	Bool bool `json:"bool"`
}

// PoseT carries a full 9-coordinate pose.
type PoseT struct {
	X, Y, Z, A, B, C, U, V, W float64
}

// StrT carries a single string value.
type StrT struct {
	Str string `json:"str"`
}

// MethodPath identifies one route by HTTP method and chi pattern.
type MethodPath struct {
	Method, Path string
}

func (mp MethodPath) String() string { return mp.Method + " " + mp.Path }

// RouteTable maps a method+path to its handler, router-agnostic until
// Bind attaches it to a chi.Router.
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints lists every route in the table as "METHOD /path" strings,
// sorted for stable output.
func (rt RouteTable) Endpoints() []string {
	out := make([]string, 0, len(rt))
	for mp := range rt {
		out = append(out, mp.String())
	}
	sort.Strings(out)
	return out
}

func (rt RouteTable) endpointsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rt.Endpoints())
	}
}

// Bind registers every route in rt on mux, plus a GET /endpoints route
// listing them, unless the table already defines one.
func (rt RouteTable) Bind(mux chi.Router) {
	for mp, h := range rt {
		mux.MethodFunc(mp.Method, mp.Path, h)
	}
	if _, exists := rt[MethodPath{Method: http.MethodGet, Path: "/endpoints"}]; !exists {
		mux.Get("/endpoints", rt.endpointsHandler())
	}
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func getFloat(fn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn()
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(FloatT{F64: v})
	}
}

func setFloat(fn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f FloatT
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer r.Body.Close()
		if err := fn(f.F64); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func getBool(fn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := fn()
		if err != nil {
			writeErr(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(BoolT{Bool: v})
	}
}

func doAction(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
