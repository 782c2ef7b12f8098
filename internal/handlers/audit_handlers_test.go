package handlers

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/partsregistry/registry/internal/models"
)

func TestAuditExportEndpoint(t *testing.T) {
	env := setupTestEnv(t)
	account, token := createTestAccount(t, env.db, "audit-user@test.com", models.AccountTypeNormal)
	_, adminToken := createTestAccount(t, env.db, "audit-admin@test.com", models.AccountTypeAdmin)

	entry := models.AuditLog{
		AccountID:    &account.ID,
		ActorEmail:   account.Email,
		Action:       "folder.create",
		ResourceType: string(models.ResourceFolder),
		Details: map[string]any{
			"folder_type": "private",
			"folder_name": "Plasmids",
		},
		IPAddress: "127.0.0.1",
		CreatedAt: time.Now().UTC(),
	}
	if err := env.db.Create(&entry).Error; err != nil {
		t.Fatalf("failed creating audit log fixture: %v", err)
	}

	t.Run("GET /api/audit/export?format=json", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/audit/export?format=json", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if len(dataList(t, body)) != 1 {
			t.Fatalf("expected one audit row, got %+v", body["data"])
		}
	})

	t.Run("GET /api/audit/export?format=csv", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/audit/export?format=csv", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)
		defer resp.Body.Close()
		raw := new(strings.Builder)
		if _, err := io.Copy(raw, resp.Body); err != nil {
			t.Fatalf("failed reading csv: %v", err)
		}
		if !strings.Contains(raw.String(), "folder_name=Plasmids; folder_type=private") {
			t.Fatalf("expected sorted details in csv, got %q", raw.String())
		}
	})

	t.Run("GET /api/audit/export?format=invalid", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/audit/export?format=invalid", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "format must be csv or json")
	})

	t.Run("POST /api/audit/export without storage", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPost, "/api/audit/export", nil, authHeaders(adminToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusServiceUnavailable)
		assertEnvelopeError(t, body, "audit export failed")
	})
}

func TestActivitiesEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	account, token := createTestAccount(t, env.db, "feed@test.com", models.AccountTypeNormal)
	other, _ := createTestAccount(t, env.db, "sharer@test.com", models.AccountTypeNormal)

	activities := []models.Activity{
		{AccountID: account.ID, ActorID: other.ID, Action: "permission.create", ResourceType: "folder", ResourceName: "Plasmids", Message: "Test User shared folder \"Plasmids\" with you"},
		{AccountID: account.ID, ActorID: account.ID, Action: "folder.create", ResourceType: "folder", ResourceName: "Seeds", Message: "You created collection \"Seeds\""},
		{AccountID: other.ID, ActorID: other.ID, Action: "folder.create", ResourceType: "folder", ResourceName: "Mine", Message: "You created collection \"Mine\""},
	}
	if err := env.db.Create(&activities).Error; err != nil {
		t.Fatalf("failed creating activities: %v", err)
	}

	t.Run("GET /api/activities/ lists own feed", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/activities/", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if len(dataList(t, body)) != 2 {
			t.Fatalf("expected two activities, got %+v", body["data"])
		}
	})

	t.Run("PUT /api/activities/:id/read", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPut, "/api/activities/"+activities[0].ID.String()+"/read", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, "/api/activities/unread-count", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		if dataMap(t, body)["count"].(float64) != 1 {
			t.Fatalf("expected one unread activity, got %+v", body["data"])
		}
	})

	t.Run("PUT /api/activities/:id/read other account's activity", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPut, "/api/activities/"+activities[2].ID.String()+"/read", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "activity not found")
	})

	t.Run("PUT /api/activities/read-all", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodPut, "/api/activities/read-all", nil, authHeaders(token))
		assertStatus(t, resp, http.StatusOK)

		resp = performRequest(t, env.app, http.MethodGet, "/api/activities/?unread=true", nil, authHeaders(token))
		body := decodeJSONMap(t, resp)
		if len(dataList(t, body)) != 0 {
			t.Fatalf("expected no unread activities, got %+v", body["data"])
		}
	})
}
