package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"cryptopay-go/internal/api"
	"cryptopay-go/internal/formance"
	"cryptopay-go/internal/solana"
	"cryptopay-go/internal/store"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// requestError is a malformed request that never reached the service layer.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("Request failed",
			zap.String("request_id", requestIdFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		zap.L().Debug("Request rejected",
			zap.String("request_id", requestIdFrom(r.Context())),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, errorBody) {
	var ve *store.ValidationError
	var re *requestError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: "validation failed", Fields: ve.Fields}
	case errors.As(err, &re):
		return http.StatusBadRequest, errorBody{Error: re.msg}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: notFoundMessage(err)}
	case errors.Is(err, store.ErrDuplicateInvoiceNumber),
		errors.Is(err, store.ErrDuplicateUser),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrConcurrentModification),
		errors.Is(err, store.ErrDuplicateTransaction),
		errors.Is(err, api.ErrInvoiceLocked):
		return http.StatusConflict, errorBody{Error: err.Error()}
	case errors.Is(err, api.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: api.ErrUnauthorized.Error()}
	case errors.Is(err, api.ErrForbidden):
		return http.StatusForbidden, errorBody{Error: api.ErrForbidden.Error()}
	case errors.Is(err, api.ErrUnavailable),
		errors.Is(err, formance.ErrLedgerDisabled),
		errors.Is(err, solana.ErrAirdropDisabled):
		return http.StatusServiceUnavailable, errorBody{Error: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal server error"}
	}
}

// notFoundMessage reduces "invoice 12: not found" to "invoice not found".
func notFoundMessage(err error) string {
	fields := strings.Fields(err.Error())
	if len(fields) == 0 || strings.HasPrefix(fields[0], "not") {
		return "not found"
	}
	return strings.TrimSuffix(fields[0], ":") + " not found"
}

// decode reads a JSON body into dst and runs its struct validation.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body is required")
		}
		return badRequest(fmt.Sprintf("malformed request body: %v", err))
	}
	return validateRequest(dst)
}

func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &store.ValidationError{}
	for _, fe := range fieldErrs {
		ve.Add(fe.Field(), fieldMessage(fe))
	}
	return ve
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	case "gt":
		return "must be greater than " + fe.Param()
	default:
		return "is invalid"
	}
}

func pathId(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id " + strconv.Quote(raw))
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, store.NewValidationError(name, "must be an integer")
	}
	return &v, nil
}
