package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/partsregistry/registry/internal/models"
)

func createEntryViaAPI(t *testing.T, env *testEnv, token, name string) string {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/entries/", map[string]any{
		"kind":           "plasmid",
		"name":           name,
		"creator":        "Test User",
		"bioSafetyLevel": 1,
		"status":         "complete",
		"backbone":       "pUC19",
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	return dataMap(t, body)["id"].(string)
}

func createFolderViaAPI(t *testing.T, env *testEnv, token, name string) string {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/", map[string]any{
		"name": name,
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusCreated)
	return dataMap(t, body)["id"].(string)
}

func TestFoldersEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createTestAccount(t, env.db, "folder-owner@test.com", models.AccountTypeNormal)
	reader, readerToken := createTestAccount(t, env.db, "folder-reader@test.com", models.AccountTypeNormal)
	_, strangerToken := createTestAccount(t, env.db, "folder-stranger@test.com", models.AccountTypeNormal)
	_, curatorToken := createTestAccount(t, env.db, "folder-curator@test.com", models.AccountTypeAdmin)

	folderID := createFolderViaAPI(t, env, ownerToken, "Plasmids")
	entryID := createEntryViaAPI(t, env, ownerToken, "pTest1")

	t.Run("POST /api/folders/ blank name rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/", map[string]any{"name": " "}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "name is required")
	})

	t.Run("POST /api/folders/ requires auth", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/", map[string]any{"name": "X"}, nil)
		assertStatus(t, resp, http.StatusUnauthorized)
	})

	t.Run("POST /api/folders/:id/entries adds contents", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/entries", map[string]any{
			"entryIDs": []string{entryID},
		}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusOK)
	})

	t.Run("GET /api/folders/:id lists contents for owner", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID+"?sort=name&asc=true", nil, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		data := dataMap(t, body)
		if data["count"].(float64) != 1 {
			t.Fatalf("expected count 1, got %v", data["count"])
		}
		if data["canEdit"] != true {
			t.Fatalf("expected owner to be able to edit")
		}
	})

	t.Run("GET /api/folders/:id hides private folder from strangers", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID, nil, authHeaders(strangerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "folder not found")
	})

	t.Run("GET /api/folders/:id hides private folder from anonymous callers", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID, nil, nil)
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("PUT /api/folders/drafts rejects virtual folders", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/drafts", map[string]any{"name": "X"}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "virtual folders cannot be addressed by id")
	})

	t.Run("PUT /api/folders/:id invalid id", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/not-a-uuid", map[string]any{"name": "X"}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("POST /api/folders/:id/permissions shares with reader", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/permissions", map[string]any{
			"granteeType": "account",
			"granteeID":   reader.ID.String(),
			"canRead":     true,
		}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusCreated)
		if dataMap(t, body)["canWrite"] != false {
			t.Fatalf("expected read-only grant, got %+v", body["data"])
		}
	})

	t.Run("GET /api/folders/shared lists folder for reader", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/shared", nil, authHeaders(readerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		folders := dataList(t, body)
		if len(folders) != 1 || folders[0].(map[string]any)["id"] != folderID {
			t.Fatalf("expected shared folder for reader, got %+v", folders)
		}
	})

	t.Run("PUT /api/folders/:id reader cannot write", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID, map[string]any{"name": "Renamed"}, authHeaders(readerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusNotFound)
		assertEnvelopeError(t, body, "folder not found")
	})

	t.Run("PUT /api/folders/:id empty update rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID, map[string]any{}, authHeaders(ownerToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusBadRequest)
		assertEnvelopeError(t, body, "no valid fields to update")
	})

	t.Run("PUT /api/folders/:id invalid type rejected", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID, map[string]any{"type": "shared"}, authHeaders(ownerToken))
		assertStatus(t, resp, http.StatusBadRequest)
	})

	t.Run("PUT /api/folders/:id owner cannot promote", func(t *testing.T) {
		var before int64
		env.db.Model(&models.Permission{}).Where("folder_id = ?", folderID).Count(&before)

		for _, folderType := range []string{"public", "private"} {
			resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID, map[string]any{"type": folderType}, authHeaders(ownerToken))
			body := decodeJSONMap(t, resp)
			assertStatus(t, resp, http.StatusNotFound)
			assertEnvelopeError(t, body, "folder not found")
		}

		var stored models.Folder
		if err := env.db.First(&stored, "id = ?", folderID).Error; err != nil {
			t.Fatalf("loading folder: %v", err)
		}
		if stored.Type == models.FolderTypePublic || stored.OwnerEmail != "folder-owner@test.com" {
			t.Fatalf("expected folder untouched, got type=%s owner=%q", stored.Type, stored.OwnerEmail)
		}
		var after int64
		env.db.Model(&models.Permission{}).Where("folder_id = ?", folderID).Count(&after)
		if before == 0 || after != before {
			t.Fatalf("expected grants to survive the rejected promotion, had %d now %d", before, after)
		}
	})

	t.Run("PUT /api/folders/:id admin promotes to public", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID, map[string]any{"type": "public"}, authHeaders(curatorToken))
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if dataMap(t, body)["type"] != string(models.FolderTypePublic) {
			t.Fatalf("expected public folder, got %+v", body["data"])
		}

		var count int64
		env.db.Model(&models.Permission{}).Where("folder_id = ?", folderID).Count(&count)
		if count != 0 {
			t.Fatalf("expected promotion to clear grants, found %d", count)
		}
	})

	t.Run("GET /api/folders/:id public folder readable anonymously", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/"+folderID, nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if dataMap(t, body)["canEdit"] != false {
			t.Fatalf("anonymous caller must not be able to edit")
		}
	})

	t.Run("GET /api/folders/public lists public folders anonymously", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodGet, "/api/folders/public", nil, nil)
		body := decodeJSONMap(t, resp)
		assertStatus(t, resp, http.StatusOK)
		if len(dataList(t, body)) != 1 {
			t.Fatalf("expected one public folder, got %+v", body["data"])
		}
	})

	t.Run("DELETE /api/folders/:id/entries public folder needs admin", func(t *testing.T) {
		resp := performJSONRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/entries", map[string]any{
			"entryIDs": []string{entryID},
		}, authHeaders(readerToken))
		assertStatus(t, resp, http.StatusNotFound)
	})

	t.Run("DELETE /api/folders/:id stranger cannot delete", func(t *testing.T) {
		resp := performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID, nil, authHeaders(strangerToken))
		assertStatus(t, resp, http.StatusNotFound)
	})
}

func TestFolderPublicReadAccessEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createTestAccount(t, env.db, "public-owner@test.com", models.AccountTypeNormal)
	_, otherToken := createTestAccount(t, env.db, "public-other@test.com", models.AccountTypeNormal)
	folderID := createFolderViaAPI(t, env, ownerToken, "Seeds")

	resp := performRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID+"/public", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/folders/available", nil, authHeaders(otherToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if len(dataList(t, body)) != 1 {
		t.Fatalf("expected folder in available listing, got %+v", body["data"])
	}

	var folder models.Folder
	env.db.First(&folder, "id = ?", folderID)
	if folder.Type != models.FolderTypePrivate {
		t.Fatalf("public read access must not change the folder type, got %s", folder.Type)
	}

	resp = performRequest(t, env.app, http.MethodDelete, "/api/folders/"+folderID+"/public", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)

	resp = performRequest(t, env.app, http.MethodGet, "/api/folders/available", nil, authHeaders(otherToken))
	body = decodeJSONMap(t, resp)
	if len(dataList(t, body)) != 0 {
		t.Fatalf("expected empty available listing, got %+v", body["data"])
	}
}

func TestFolderMoveAndAddToMany(t *testing.T) {
	env := setupTestEnv(t)
	_, token := createTestAccount(t, env.db, "mover@test.com", models.AccountTypeNormal)
	source := createFolderViaAPI(t, env, token, "Source")
	first := createFolderViaAPI(t, env, token, "First")
	second := createFolderViaAPI(t, env, token, "Second")
	entryID := createEntryViaAPI(t, env, token, "pMove")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/contents", map[string]any{
		"folderIDs": []string{source, first},
		"entryIDs":  []string{entryID},
	}, authHeaders(token))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusOK)
	if len(dataList(t, body)) != 2 {
		t.Fatalf("expected two folders updated, got %+v", body["data"])
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+source+"/move", map[string]any{
		"destinationIDs": []string{second},
		"entryIDs":       []string{entryID},
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)

	var count int64
	env.db.Model(&models.FolderEntry{}).Where("folder_id = ?", source).Count(&count)
	if count != 0 {
		t.Fatalf("expected source emptied by move, found %d", count)
	}
	env.db.Model(&models.FolderEntry{}).Where("folder_id = ?", second).Count(&count)
	if count != 1 {
		t.Fatalf("expected destination to hold the entry, found %d", count)
	}

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/folders/contents", map[string]any{
		"folderIDs": []string{"bogus"},
		"entryIDs":  []string{entryID},
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestFolderPropagationFailureReported(t *testing.T) {
	env := setupTestEnv(t)
	_, ownerToken := createTestAccount(t, env.db, "prop-owner@test.com", models.AccountTypeNormal)
	reader, _ := createTestAccount(t, env.db, "prop-reader@test.com", models.AccountTypeNormal)
	folderID := createFolderViaAPI(t, env, ownerToken, "Strains")
	entryID := createEntryViaAPI(t, env, ownerToken, "pGood")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/entries", map[string]any{
		"entryIDs": []string{entryID},
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/permissions", map[string]any{
		"granteeType": "account",
		"granteeID":   reader.ID.String(),
		"canRead":     true,
	}, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusCreated)

	missing := uuid.New()
	if err := env.db.Create(&models.FolderEntry{FolderID: uuid.MustParse(folderID), EntryID: missing, CreatedAt: time.Now()}).Error; err != nil {
		t.Fatalf("failed creating dangling membership: %v", err)
	}

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/folders/"+folderID, map[string]any{
		"propagatePermissions": true,
	}, authHeaders(ownerToken))
	body := decodeJSONMap(t, resp)
	assertStatus(t, resp, http.StatusMultiStatus)
	failed, _ := body["failedEntries"].([]any)
	if len(failed) != 1 || failed[0] != missing.String() {
		t.Fatalf("expected the dangling entry to be reported, got %+v", body)
	}

	env.db.Where("entry_id = ?", missing).Delete(&models.FolderEntry{})
	resp = performRequest(t, env.app, http.MethodPost, "/api/folders/"+folderID+"/propagate", nil, authHeaders(ownerToken))
	assertStatus(t, resp, http.StatusOK)
}
