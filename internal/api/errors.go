package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lamas-finance/round-settler/internal/engine"
	"github.com/lamas-finance/round-settler/internal/games"
	"github.com/lamas-finance/round-settler/internal/round"
	"github.com/lamas-finance/round-settler/internal/settle"
	"github.com/lamas-finance/round-settler/internal/store"
)

// ErrorBuilder helps construct structured errors with context
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]interface{}
	requestID string
}

// NewError creates a new error builder
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (eb *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds request ID to the error
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause adds the underlying cause error
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// classify maps a domain error to an HTTP status and error type.
func classify(err error) (int, string, string) {
	var transport interface{ IsRetryable() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTypeTimeout, "Operation timed out"
	case errors.Is(err, round.ErrStageMismatch):
		return http.StatusConflict, ErrTypeStageMismatch, "Round is not in the required stage"
	case errors.Is(err, round.ErrIllegalTransition):
		return http.StatusConflict, ErrTypeIllegalStage, "Round cannot move to that stage"
	case errors.Is(err, settle.ErrOutcomePending):
		return http.StatusConflict, ErrTypeOutcomePending, "Round outcome not recorded yet"
	case errors.Is(err, store.ErrRunInProgress):
		return http.StatusConflict, ErrTypeRunInProgress, "Settlement already in progress"
	case errors.Is(err, store.ErrImmutable):
		return http.StatusConflict, ErrTypeImmutable, "Ledger record is already final"
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound, ErrTypeRunNotFound, "Settlement run not found"
	case errors.Is(err, round.ErrNotFound):
		return http.StatusNotFound, ErrTypeRoundNotFound, "Round not found"
	case errors.Is(err, games.ErrUnsupported):
		return http.StatusBadRequest, ErrTypeUnsupported, "Operation not supported for this game"
	case errors.Is(err, engine.ErrArithmeticOverflow):
		return http.StatusUnprocessableEntity, ErrTypeOverflow, "Aggregate exceeds configured limits"
	case errors.Is(err, engine.ErrInvalidInput):
		return http.StatusUnprocessableEntity, ErrTypeInvalidInput, "Round data is invalid"
	case errors.As(err, &transport):
		return http.StatusBadGateway, ErrTypeUpstream, "Ledger request failed"
	default:
		return http.StatusInternalServerError, ErrTypeInternal, "Internal server error"
	}
}

// ErrorHandler provides centralized error handling with logging
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError classifies err and writes the matching structured response
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if engineErr, ok := err.(EngineError); ok {
		eh.logError(r, engineErr, http.StatusInternalServerError)
		eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
		return
	}

	status, errType, message := classify(err)
	engineErr := NewError(errType, message).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		WithCause(err).
		Build()

	eh.logError(r, engineErr, status)
	eh.writeErrorResponse(w, status, engineErr)
}

// HandleValidationError handles validation-specific errors
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()

	eh.logError(r, engineErr, http.StatusBadRequest)
	eh.writeErrorResponse(w, http.StatusBadRequest, engineErr)
}

// HandleGameNotFound handles requests naming an unknown game
func (eh *ErrorHandler) HandleGameNotFound(w http.ResponseWriter, r *http.Request, game string) {
	engineErr := NewError(ErrTypeGameNotFound, fmt.Sprintf("Unknown game: %s", game)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("game", game).
		WithContext("path", r.URL.Path).
		Build()

	eh.logError(r, engineErr, http.StatusNotFound)
	eh.writeErrorResponse(w, http.StatusNotFound, engineErr)
}

// logError logs the error with appropriate level and context
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	fields := []zap.Field{
		zap.String("type", engineErr.Type),
		zap.String("category", string(category)),
		zap.Int("status", status),
		zap.String("request_id", engineErr.RequestID),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Any("context", engineErr.Context),
	}

	switch {
	case status >= 500:
		eh.logger.Error(engineErr.Message, fields...)
	case category == CategoryValidation:
		eh.logger.Warn(engineErr.Message, fields...)
	default:
		eh.logger.Info(engineErr.Message, fields...)
	}
}

// writeErrorResponse writes the error response as JSON
func (eh *ErrorHandler) writeErrorResponse(w http.ResponseWriter, status int, engineErr EngineError) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Settler-Version", Version)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Warn("failed to encode error response", zap.Error(err))
	}
}

// RecoveryHandler provides panic recovery with structured error logging
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic recovered",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.Any("panic", rvr),
					zap.Stack("stack"))

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()

				eh.writeErrorResponse(w, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
