package routes

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"launchcore/core/faults"
	"launchcore/core/types"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the engine error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, faults.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, faults.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, faults.ErrTiming), errors.Is(err, faults.ErrStateConflict):
		status = http.StatusConflict
	case errors.Is(err, faults.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Code: faults.Code(err), Message: err.Error()}})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, faults.Validationf("invalid request body: %v", err))
		return false
	}
	return true
}

func parseAddr(field, raw string) (types.Address, error) {
	if raw == "" {
		return types.ZeroAddress, nil
	}
	addr, err := types.ParseAddress(raw)
	if err != nil {
		return types.ZeroAddress, faults.Validationf("%s: %v", field, err)
	}
	return addr, nil
}

func requireAddr(field, raw string) (types.Address, error) {
	if raw == "" {
		return types.ZeroAddress, faults.Validationf("%s is required", field)
	}
	return parseAddr(field, raw)
}

func parseAmount(field, raw string) (*big.Int, error) {
	if raw == "" {
		return nil, faults.Validationf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, faults.Validationf("%s: %q is not a decimal integer", field, raw)
	}
	return amount, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
