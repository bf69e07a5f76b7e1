package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rpggio/entityhub/internal/entity"
)

// StatusFor maps a Result to an HTTP status code. created selects 201 for a
// successful create.
func StatusFor(res entity.Result, created bool) int {
	switch res.Kind {
	case entity.KindOK:
		if created {
			return http.StatusCreated
		}
		return http.StatusOK
	case entity.KindNotFound:
		return http.StatusNotFound
	case entity.KindInvalid:
		return http.StatusBadRequest
	case entity.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		if res.Success {
			return http.StatusOK
		}
		return http.StatusInternalServerError
	}
}

func writeResult(w http.ResponseWriter, res entity.Result, created bool) {
	writeJSON(w, StatusFor(res, created), res)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, entity.Result{Success: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
