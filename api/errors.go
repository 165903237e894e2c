package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jmcleod/sessiongate/auth"
	"github.com/jmcleod/sessiongate/member"
	"github.com/jmcleod/sessiongate/pipeline"
	"github.com/jmcleod/sessiongate/storage"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeInternalError logs err and writes a 500 with msg. The underlying
// error never reaches the client.
func (a *API) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	a.logger.LogAttrs(r.Context(), slog.LevelError, msg,
		slog.String("correlation_id", pipeline.CorrelationID(r.Context())),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, msg)
}

func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
	case errors.Is(err, member.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, member.ErrDuplicateLoginID):
		writeError(w, http.StatusConflict, member.ErrDuplicateLoginID.Error())
	case errors.Is(err, member.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		a.writeInternalError(w, r, "internal server error", err)
	}
}
