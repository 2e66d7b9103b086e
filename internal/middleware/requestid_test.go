package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalRequestID).(string))
	})

	cases := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{"absent", "", false},
		{"accepted", "req-42", true},
		{"too long", strings.Repeat("a", maxRequestIDLen+1), false},
		{"space", "bad id", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header.Set(requestIDHeader, tc.incoming)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			got := resp.Header.Get(requestIDHeader)
			if got == "" {
				t.Fatalf("response carries no request id")
			}
			if tc.keep && got != tc.incoming {
				t.Fatalf("expected %q to be kept, got %q", tc.incoming, got)
			}
			if !tc.keep && got == tc.incoming {
				t.Fatalf("expected %q to be replaced", tc.incoming)
			}
		})
	}
}
