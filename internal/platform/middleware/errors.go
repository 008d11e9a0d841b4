package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorHandler renders errors that reach echo (from middleware, routing or
// handlers that return *echo.HTTPError) as ErrorBody. Unknown errors become a
// 500 and their text is logged only.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		msg := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			logger.Error().Err(err).Str("request_id", RequestIDFrom(c)).Msg("unhandled error")
		}

		body := ErrorBody{Error: errorKind(code), Message: msg}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, body)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

// errorKind turns a status code into a PascalCase kind, e.g. 429 ->
// "TooManyRequests".
func errorKind(code int) string {
	text := http.StatusText(code)
	if text == "" {
		return "Error"
	}
	return strings.NewReplacer(" ", "", "-", "", "'", "").Replace(text)
}
