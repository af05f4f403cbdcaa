package responses

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	pkgerrors "github.com/angelmondragon/marketplace-inventory/pkg/errors"
	"github.com/angelmondragon/marketplace-inventory/pkg/logger"
	"github.com/angelmondragon/marketplace-inventory/pkg/types"
)

// RetryAfterSeconds is advertised on retryable dependency failures.
const RetryAfterSeconds = 1


func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}

	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}

	meta := pkgerrors.MetadataFor(typed.Code())

	msg := meta.PublicMessage
	if m := typed.Message(); meta.ExposeMessage && m != "" {
		msg = m
	}

	payload := types.ErrorEnvelope{
		Error: types.APIError{
			Code:      string(typed.Code()),
			Message:   msg,
			RequestID: requestID(ctx, w),
		},
	}

	if meta.DetailsAllowed {
		if details := typed.Details(); details != nil {
			payload.Error.Details = details
		}
	}

	if logg != nil {
		logRequestError(ctx, logg, err, meta.HTTPStatus)
	}

	if typed.Code() == pkgerrors.CodeDependency {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	writeJSON(w, meta.HTTPStatus, payload)
}

// logRequestError keeps expected client outcomes such as an insufficient
// stock rejection out of the error stream.
func logRequestError(ctx context.Context, logg *logger.Logger, err error, status int) {
	fields := pkgerrors.LogFields(err)
	fields["status"] = status
	ctx = logg.WithFields(ctx, fields)

	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable:
		logg.Error(ctx, "request.error", err)
	case status == http.StatusServiceUnavailable:
		logg.Warn(ctx, "request.unavailable")
	default:
		logg.Info(ctx, "request.rejected")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode response","err":"%v"}`, err)
	}
}

// requestID prefers the id on ctx. Middleware outside RequestID, such as the
// recoverer, only sees the response header.
func requestID(ctx context.Context, w http.ResponseWriter) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return w.Header().Get(chimw.RequestIDHeader)
}
