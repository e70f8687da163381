package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/uncord-chat/uncord-server/internal/apierrors"
	"github.com/uncord-chat/uncord-server/internal/httputil"
)

func TestRunRejectsUnknownMode(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{nil, {}, {"bogus"}, {"api", "extra"}} {
		if err := run(args); err == nil {
			t.Errorf("run(%v) = nil, want usage error", args)
		}
	}
}

// TestUnknownRouteReturns404 verifies that requests to undefined paths receive a 404 JSON response. Fiber v3 treats
// app.Use() middleware as route matches, so without the catch-all handler the router would return 200 with an empty
// body for unmatched paths.
func TestUnknownRouteReturns404(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "An internal error occurred"
			apiCode := apierrors.InternalError
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				message = e.Message
				apiCode = fiberStatusToAPICode(e.Code)
			}
			return c.Status(status).JSON(httputil.ErrorResponse{
				Error: httputil.ErrorBody{
					Code:    apiCode,
					Message: message,
				},
			})
		},
	})
	app.Get("/known", func(c fiber.Ctx) error { return c.SendString("ok") })
	app.Use(func(_ fiber.Ctx) error {
		return fiber.ErrNotFound
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/definitely-not-a-route", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusNotFound)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var envelope httputil.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("unmarshal error body %q: %v", body, err)
	}
	if envelope.Error.Code != apierrors.NotFound {
		t.Errorf("error code = %q, want %q", envelope.Error.Code, apierrors.NotFound)
	}
}

func TestFiberStatusToAPICode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   apierrors.Code
	}{
		{fiber.StatusNotFound, apierrors.NotFound},
		{fiber.StatusMethodNotAllowed, apierrors.ValidationError},
		{fiber.StatusTooManyRequests, apierrors.RateLimited},
		{fiber.StatusRequestEntityTooLarge, apierrors.PayloadTooLarge},
		{fiber.StatusServiceUnavailable, apierrors.ServiceUnavailable},
		{fiber.StatusBadRequest, apierrors.ValidationError},
		{fiber.StatusInternalServerError, apierrors.InternalError},
	}

	for _, tt := range tests {
		if got := fiberStatusToAPICode(tt.status); got != tt.want {
			t.Errorf("fiberStatusToAPICode(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
