package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	apiContext "formsmith/internal/api/context"
	"formsmith/internal/api/middleware"
	"formsmith/internal/engine/permissions"
	"formsmith/internal/pkg/errors"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body into v. A malformed body is reported as a
// validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		return errors.NewValidationError("Invalid request body", map[string]string{"body": err.Error()})
	}
	return nil
}

func param(r *http.Request, name string) string {
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	return params.ByName(name)
}

// businessID is the tenant resolved by the BusinessScope middleware, or the
// raw request value when the route runs without it.
func businessID(r *http.Request) string {
	if scope, ok := permissions.ScopeFromContext(r.Context()); ok {
		return scope.BusinessID
	}
	return middleware.BusinessID(r)
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}
