package middleware

import (
	"time"

	"TickStockApp/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs each request at debug level and 5xx responses as errors.
func RequestLogging(l *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			req, res := c.Request(), c.Response()
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("uri", req.RequestURI),
				logger.String("remote", c.RealIP()),
				logger.Int("status", res.Status),
				logger.Duration("latency_ms", time.Since(start)),
			}
			if res.Status >= 500 {
				l.Error("http request failed", append(fields, logger.Error(err))...)
			} else {
				l.Debug("http request", fields...)
			}
			return err
		}
	}
}
