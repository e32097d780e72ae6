package main

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/clearinsure-backend/internal/auth"
	"github.com/aldoetobex/clearinsure-backend/pkg/config"
	"github.com/aldoetobex/clearinsure-backend/pkg/logger"
	"github.com/aldoetobex/clearinsure-backend/pkg/metrics"
)

func TestHandlerPanicOnlyFailsItsRequest(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler(nil)})
	useMiddleware(app, deps{
		cfg:  &config.Config{},
		logg: logger.Nop(),
		rec:  metrics.New(prometheus.NewRegistry()),
	})
	app.Post("/boom", func(c *fiber.Ctx) error { panic("can't convert  12000 to decimal") })
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("POST", "/boom", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/ok", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
