// Package httpapi exposes the factory service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"factorycore/internal/core"
)

// APIRoot is the path prefix of the factory API.
const APIRoot = "/api/factory"

// Option customises the HTTP server.
type Option func(*options)

type options struct {
	secret   []byte
	gatherer prometheus.Gatherer
	logger   core.Logger
}

// WithJWTSecret enables bearer token identity. An empty secret leaves every
// request anonymous.
func WithJWTSecret(secret string) Option {
	return func(o *options) { o.secret = []byte(secret) }
}

// WithMetricsGatherer serves gatherer at /metrics.
func WithMetricsGatherer(gatherer prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = gatherer }
}

// WithLogger sets the request logger.
func WithLogger(logger core.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds the echo server routing the factory API to svc.
func New(svc *core.Service, opts ...Option) *echo.Echo {
	o := options{logger: core.NewNoopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(e, o.logger)
	e.Use(middleware.Recover())
	e.Use(requestLogger(o.logger))
	if len(o.secret) > 0 {
		e.Use(IdentityMiddleware(o.secret))
	}

	api := e.Group(APIRoot)
	api.POST("", CreateFactoryHandler(svc))
	api.GET("/find", FindFactoriesHandler(svc))
	api.POST("/resolver", ResolveFactoryHandler(svc))
	api.GET("/workspace/:wsId", FactoryFromWorkspaceHandler(svc, "wsId"))
	api.GET("/:id", GetFactoryHandler(svc, "id"))
	api.PUT("/:id", UpdateFactoryHandler(svc, "id"))
	api.DELETE("/:id", RemoveFactoryHandler(svc, "id"))
	api.GET("/:id/image", GetImageHandler(svc, "id"))
	api.GET("/:id/snippet", GetSnippetHandler(svc, "id"))

	if o.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{})))
	}
	return e
}

// Serve runs e on addr until ctx is cancelled, then shuts it down within
// shutdownTimeout.
func Serve(ctx context.Context, e *echo.Echo, addr string, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	graceful, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(graceful); err != nil {
		return err
	}
	return <-errCh
}

func requestLogger(logger core.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				status = toHTTPError(err).Code
			}
			logger.Debug("http request",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", status,
				"duration", time.Since(started),
			)
			return err
		}
	}
}
