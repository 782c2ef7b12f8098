package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestResponseEnvelopes(t *testing.T) {
	app := fiber.New()
	app.Post("/folders", func(c *fiber.Ctx) error {
		return Success(c, fiber.StatusCreated, fiber.Map{"id": "f-1", "type": "private"})
	})
	app.Get("/folders/drafts", func(c *fiber.Ctx) error {
		return Error(c, fiber.StatusBadRequest, "virtual folders cannot be addressed by id")
	})
	app.Get("/public/entries", func(c *fiber.Ctx) error {
		return Paginated(c, []string{"pUC19", "pET28"}, 2, 20, 45)
	})
	app.Get("/empty", func(c *fiber.Ctx) error {
		return Paginated(c, []string{}, 1, 0, 3)
	})

	tests := []struct {
		name    string
		method  string
		path    string
		status  int
		success bool
		check   func(t *testing.T, body map[string]any)
	}{
		{
			name: "success carries data", method: http.MethodPost, path: "/folders",
			status: fiber.StatusCreated, success: true,
			check: func(t *testing.T, body map[string]any) {
				data, _ := body["data"].(map[string]any)
				if data["id"] != "f-1" || data["type"] != "private" {
					t.Fatalf("unexpected data %v", body["data"])
				}
			},
		},
		{
			name: "error carries message", method: http.MethodGet, path: "/folders/drafts",
			status: fiber.StatusBadRequest, success: false,
			check: func(t *testing.T, body map[string]any) {
				if body["error"] != "virtual folders cannot be addressed by id" {
					t.Fatalf("unexpected error %v", body["error"])
				}
				if _, ok := body["data"]; ok {
					t.Fatalf("error envelope should not carry data: %v", body)
				}
			},
		},
		{
			name: "paginated reports page metadata", method: http.MethodGet, path: "/public/entries",
			status: fiber.StatusOK, success: true,
			check: func(t *testing.T, body map[string]any) {
				if data, _ := body["data"].([]any); len(data) != 2 {
					t.Fatalf("expected two entries, got %v", body["data"])
				}
				assertPagination(t, body, 2, 20, 45, 3)
			},
		},
		{
			name: "zero limit reports no pages", method: http.MethodGet, path: "/empty",
			status: fiber.StatusOK, success: true,
			check: func(t *testing.T, body map[string]any) {
				assertPagination(t, body, 1, 0, 3, 0)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(tt.method, tt.path, nil), -1)
			if err != nil {
				t.Fatalf("request to %s failed: %v", tt.path, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, resp.StatusCode)
			}
			var body map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if success, _ := body["success"].(bool); success != tt.success {
				t.Fatalf("expected success=%v, got %v", tt.success, body["success"])
			}
			tt.check(t, body)
		})
	}
}

func assertPagination(t *testing.T, body map[string]any, page, limit, total, pages int) {
	t.Helper()

	pagination, ok := body["pagination"].(map[string]any)
	if !ok {
		t.Fatalf("expected pagination object, got %T", body["pagination"])
	}
	want := map[string]int{"page": page, "limit": limit, "total": total, "totalPages": pages}
	for key, expected := range want {
		got, ok := pagination[key].(float64)
		if !ok || int(got) != expected {
			t.Fatalf("expected pagination.%s=%d, got %v", key, expected, pagination[key])
		}
	}
}
