package reply

import (
	"context"
	"net/http"

	"git.appkode.ru/pub/go/failure"
	jsoniter "github.com/json-iterator/go"

	"inspectfleet/pkg/contextx"
	"inspectfleet/pkg/errcodes"
	"inspectfleet/pkg/logx"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // skip

// errorResponse is the stable {error,code} envelope from the API contract.
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

var logger = contextx.LoggerFromContextOrDefault //nolint:gochecknoglobals

func OK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}

func Created(w http.ResponseWriter) {
	w.WriteHeader(http.StatusCreated)
}

func JSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger(ctx).Error("json.Encode", logx.Error(err))
	}
}

// Error writes the standard error envelope for err. Errors carrying a
// failure code (failure.Code) are mapped through the stable code table;
// anything else is reported as GenericBad without leaking internal detail.
func Error(ctx context.Context, w http.ResponseWriter, err error) {
	logger(ctx).Error("request failed", logx.Error(err))

	code := errcodes.GenericBad
	message := "internal error"

	if c := failure.Code(err); c != "" {
		code = c
		message = failure.Description(err)
	}

	if message == "" {
		message = string(code)
	}

	JSON(ctx, w, errcodes.HTTPStatus(code), errorResponse{
		Error: message,
		Code:  errcodes.WireCode(code),
	})
}
