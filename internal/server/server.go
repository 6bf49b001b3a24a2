// Package server exposes certificate verification over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/popsu/covidpass/internal/dgc"
	"github.com/popsu/covidpass/internal/trustlist"
	"github.com/popsu/covidpass/internal/verify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxBodySize bounds the QR text accepted by the verify endpoint.
const MaxBodySize = 64 * 1024

// Handler serves the verification API.
type Handler struct {
	holder  *trustlist.Holder
	logger  zerolog.Logger
	metrics *Metrics
	now     func() time.Time
}

// NewHandler returns a handler verifying against the trust list in holder.
func NewHandler(holder *trustlist.Holder, metrics *Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		holder:  holder,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// VerifyResponse is the body returned by POST /verify.
type VerifyResponse struct {
	Verified    bool             `json:"verified"`
	Outcome     verify.Outcome   `json:"outcome"`
	Message     string           `json:"message"`
	Certificate *dgc.Certificate `json:"certificate,omitempty"`
}

// ErrorResponse is returned for requests that cannot be served.
type ErrorResponse struct {
	Error string `json:"error"`
}

// App creates the API application.
func (h *Handler) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             MaxBodySize,
		ErrorHandler:          h.errorHandler,
	})
	app.Post("/verify", h.verify)
	app.Get("/trustlist", h.trustList)
	app.Get("/health", h.health)
	return app
}

func (h *Handler) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed.")
	}
	return c.Status(code).JSON(ErrorResponse{Error: err.Error()})
}

func (h *Handler) verify(c *fiber.Ctx) error {
	now := h.now()
	if q := c.Query("now"); q != "" {
		t, err := time.Parse(time.RFC3339, q)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid now %q: expected RFC 3339", q))
		}
		now = t
	}

	cert, err := dgc.VerifyCertificate(string(c.Body()), h.holder.Load(), now, dgc.WithLogger(h.logger))
	if err != nil {
		h.metrics.observe("not_a_certificate")
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}

	h.metrics.observeOutcome(cert.Result.Outcome)
	return c.JSON(VerifyResponse{
		Verified:    cert.Verified(),
		Outcome:     cert.Result.Outcome,
		Message:     cert.Result.Outcome.Describe(),
		Certificate: cert,
	})
}

func (h *Handler) trustList(c *fiber.Ctx) error {
	return c.JSON(h.holder.Load().Keys())
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"keys":   h.holder.Load().Len(),
	})
}

// CreateMonitoringServer serves the metrics gathered by g.
func CreateMonitoringServer(g prometheus.Gatherer) *fiber.App {
	monApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	monApp.Get("/", func(c *fiber.Ctx) error { return nil })
	monApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	return monApp
}

type fiberApp interface {
	Shutdown() error
	Listen(addr string) error
	Listener(listener net.Listener) error
}

// RunFiber runs a fiber server in group until ctx is done.
func RunFiber(ctx context.Context, fiberApp fiberApp, addr string, group *errgroup.Group) {
	group.Go(func() error {
		if err := fiberApp.Listen(addr); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		if err := fiberApp.Shutdown(); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})
}
