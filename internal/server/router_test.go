package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/inkwell-labs/inkwell/internal/auth"
	"github.com/inkwell-labs/inkwell/internal/collab"
	"github.com/inkwell-labs/inkwell/internal/database"
	"github.com/inkwell-labs/inkwell/internal/notes"
	"github.com/inkwell-labs/inkwell/internal/users"
)

type testBackend struct {
	server *httptest.Server
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("router-test-secret"),
		Issuer:        "inkwell-auth",
		Audience:      "inkwell-api",
		TokenTTL:      time.Hour,
	})

	usersService, err := users.NewService(users.ServiceConfig{
		Database:   db,
		IDProvider: notes.NewUUIDProvider(),
	})
	if err != nil {
		t.Fatalf("failed to construct users service: %v", err)
	}

	notesService, err := notes.NewService(notes.ServiceConfig{
		Database:   db,
		IDProvider: notes.NewUUIDProvider(),
		Directory:  NewUserDirectory(usersService),
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}

	hub, err := collab.NewHub(collab.HubConfig{Permissions: notesService})
	if err != nil {
		t.Fatalf("failed to construct hub: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		TokenManager: tokenManager,
		UsersService: usersService,
		NotesService: notesService,
		Hub:          hub,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return &testBackend{server: server}
}

func (b *testBackend) request(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, b.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := b.server.Client().Do(request)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer response.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(response.Body); err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return response, buf.Bytes()
}

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("failed to decode response %s: %v", body, err)
	}
	return out
}

func registerAccount(t *testing.T, backend *testBackend, username, email string) tokenPayload {
	t.Helper()
	response, body := backend.request(t, http.MethodPost, "/auth/register", "", registerPayload{
		Username: username,
		Email:    email,
		Password: "hunter2hunter2",
	})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("registration failed with status %d: %s", response.StatusCode, body)
	}
	return decodeBody[tokenPayload](t, body)
}

func createNote(t *testing.T, backend *testBackend, token, title, content string) noteSummaryPayload {
	t.Helper()
	response, body := backend.request(t, http.MethodPost, "/notes", token, createNotePayload{Title: title, Content: content})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("note creation failed with status %d: %s", response.StatusCode, body)
	}
	return decodeBody[noteSummaryPayload](t, body)
}

func shareNote(t *testing.T, backend *testBackend, token, noteID, email, permission string) sharePayload {
	t.Helper()
	response, body := backend.request(t, http.MethodPost, "/notes/"+noteID+"/share", token, shareRequestPayload{
		Email:      email,
		Permission: permission,
	})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("share failed with status %d: %s", response.StatusCode, body)
	}
	return decodeBody[sharePayload](t, body)
}

func TestRegisterLoginRoundTrip(t *testing.T) {
	backend := newTestBackend(t)

	issued := registerAccount(t, backend, "ada", "Ada@Example.com")
	if issued.AccessToken == "" || issued.TokenType != "Bearer" {
		t.Fatalf("unexpected token payload: %#v", issued)
	}
	if issued.User.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", issued.User.Email)
	}

	response, body := backend.request(t, http.MethodPost, "/auth/login", "", loginPayload{
		Email:    "ada@example.com",
		Password: "hunter2hunter2",
	})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", response.StatusCode, body)
	}

	response, _ = backend.request(t, http.MethodPost, "/auth/login", "", loginPayload{
		Email:    "ada@example.com",
		Password: "wrong-password",
	})
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", response.StatusCode)
	}
}

func TestNotesEndpointsRequireToken(t *testing.T) {
	backend := newTestBackend(t)

	response, _ := backend.request(t, http.MethodGet, "/notes", "", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", response.StatusCode)
	}

	response, _ = backend.request(t, http.MethodGet, "/notes", "not-a-jwt", nil)
	if response.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", response.StatusCode)
	}
}

func TestNoteCrudFlow(t *testing.T) {
	backend := newTestBackend(t)
	owner := registerAccount(t, backend, "ada", "ada@example.com")

	created := createNote(t, backend, owner.AccessToken, "Meeting notes", "agenda")

	response, body := backend.request(t, http.MethodGet, "/notes/"+created.ID, owner.AccessToken, nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("get failed with status %d: %s", response.StatusCode, body)
	}
	detail := decodeBody[notePayload](t, body)
	if detail.Permission != string(notes.PermissionOwner) || !detail.IsOwner {
		t.Fatalf("expected owner permission, got %#v", detail)
	}
	if detail.Owner.Username != "ada" {
		t.Fatalf("expected resolved owner account, got %#v", detail.Owner)
	}

	newContent := "agenda v2"
	response, body = backend.request(t, http.MethodPut, "/notes/"+created.ID, owner.AccessToken, updateNotePayload{Content: &newContent})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("update failed with status %d: %s", response.StatusCode, body)
	}
	updated := decodeBody[noteSummaryPayload](t, body)
	if updated.Content != "agenda v2" || updated.Title != "Meeting notes" {
		t.Fatalf("unexpected updated note: %#v", updated)
	}

	response, body = backend.request(t, http.MethodGet, "/notes", owner.AccessToken, nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("list failed with status %d: %s", response.StatusCode, body)
	}
	listing := decodeBody[[]noteSummaryPayload](t, body)
	if len(listing) != 1 || listing[0].ID != created.ID {
		t.Fatalf("unexpected listing: %#v", listing)
	}

	response, _ = backend.request(t, http.MethodDelete, "/notes/"+created.ID, owner.AccessToken, nil)
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("delete failed with status %d", response.StatusCode)
	}

	response, _ = backend.request(t, http.MethodGet, "/notes/"+created.ID, owner.AccessToken, nil)
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", response.StatusCode)
	}
}

func TestShareFlowAndPermissionEnforcement(t *testing.T) {
	backend := newTestBackend(t)
	owner := registerAccount(t, backend, "ada", "ada@example.com")
	viewer := registerAccount(t, backend, "grace", "grace@example.com")

	created := createNote(t, backend, owner.AccessToken, "Shared note", "draft")

	// Before sharing the second account sees nothing.
	response, _ := backend.request(t, http.MethodGet, "/notes/"+created.ID, viewer.AccessToken, nil)
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before share, got %d", response.StatusCode)
	}

	grant := shareNote(t, backend, owner.AccessToken, created.ID, "grace@example.com", "view")
	if grant.Permission != string(notes.PermissionView) || grant.User.Username != "grace" {
		t.Fatalf("unexpected grant: %#v", grant)
	}

	response, body := backend.request(t, http.MethodGet, "/notes/"+created.ID, viewer.AccessToken, nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("viewer get failed with status %d: %s", response.StatusCode, body)
	}
	detail := decodeBody[notePayload](t, body)
	if detail.Permission != string(notes.PermissionView) || detail.IsOwner {
		t.Fatalf("expected view permission, got %#v", detail)
	}

	// View grants never authorize writes.
	content := "overwritten"
	response, _ = backend.request(t, http.MethodPut, "/notes/"+created.ID, viewer.AccessToken, updateNotePayload{Content: &content})
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer update, got %d", response.StatusCode)
	}

	response, body = backend.request(t, http.MethodPut, "/notes/"+created.ID+"/share/"+grant.ShareID, owner.AccessToken, updateSharePayload{Permission: "edit"})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("share update failed with status %d: %s", response.StatusCode, body)
	}

	response, _ = backend.request(t, http.MethodPut, "/notes/"+created.ID, viewer.AccessToken, updateNotePayload{Content: &content})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("expected editor update to succeed, got %d", response.StatusCode)
	}

	response, _ = backend.request(t, http.MethodDelete, "/notes/"+created.ID+"/share/"+grant.ShareID, owner.AccessToken, nil)
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke failed with status %d", response.StatusCode)
	}

	response, _ = backend.request(t, http.MethodGet, "/notes/"+created.ID, viewer.AccessToken, nil)
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 after revoke, got %d", response.StatusCode)
	}
}

func TestShareValidation(t *testing.T) {
	backend := newTestBackend(t)
	owner := registerAccount(t, backend, "ada", "ada@example.com")
	other := registerAccount(t, backend, "grace", "grace@example.com")
	created := createNote(t, backend, owner.AccessToken, "Guarded", "")

	// Sharing with the owner is rejected.
	response, _ := backend.request(t, http.MethodPost, "/notes/"+created.ID+"/share", owner.AccessToken, shareRequestPayload{Email: "ada@example.com", Permission: "edit"})
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 sharing with owner, got %d", response.StatusCode)
	}

	// Unknown recipient.
	response, _ = backend.request(t, http.MethodPost, "/notes/"+created.ID+"/share", owner.AccessToken, shareRequestPayload{Email: "nobody@example.com", Permission: "view"})
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown recipient, got %d", response.StatusCode)
	}

	// Only the owner manages grants.
	response, _ = backend.request(t, http.MethodPost, "/notes/"+created.ID+"/share", other.AccessToken, shareRequestPayload{Email: "grace@example.com", Permission: "edit"})
	if response.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner share, got %d", response.StatusCode)
	}

	// Grant levels outside view/edit are rejected.
	response, _ = backend.request(t, http.MethodPost, "/notes/"+created.ID+"/share", owner.AccessToken, shareRequestPayload{Email: "grace@example.com", Permission: "admin"})
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown permission, got %d", response.StatusCode)
	}
}

func TestStatsEndpoint(t *testing.T) {
	backend := newTestBackend(t)
	owner := registerAccount(t, backend, "ada", "ada@example.com")
	peer := registerAccount(t, backend, "grace", "grace@example.com")

	createNote(t, backend, owner.AccessToken, "First", "")
	createNote(t, backend, owner.AccessToken, "Second", "")
	theirs := createNote(t, backend, peer.AccessToken, "Theirs", "")
	shareNote(t, backend, peer.AccessToken, theirs.ID, "ada@example.com", "view")

	response, body := backend.request(t, http.MethodGet, "/notes/stats", owner.AccessToken, nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("stats failed with status %d: %s", response.StatusCode, body)
	}
	stats := decodeBody[map[string]int64](t, body)
	if stats["owned"] != 2 || stats["sharedWith"] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestCollabUpgradeRequiresValidToken(t *testing.T) {
	backend := newTestBackend(t)
	owner := registerAccount(t, backend, "ada", "ada@example.com")
	created := createNote(t, backend, owner.AccessToken, "Live", "")

	base := "ws" + strings.TrimPrefix(backend.server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(base+"/collab?access_token=bogus", nil)
	if err == nil {
		t.Fatal("expected handshake rejection for invalid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake status, got %#v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(base+"/collab?access_token="+owner.AccessToken, nil)
	if err != nil {
		t.Fatalf("expected authorized upgrade to succeed: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ready collab.Frame
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("failed to read greeting: %v", err)
	}
	if ready.Type != collab.FrameSessionReady || ready.SenderID == "" {
		t.Fatalf("expected session greeting, got %#v", ready)
	}

	if err := conn.WriteJSON(collab.Frame{Type: collab.FrameJoin, NoteID: created.ID}); err != nil {
		t.Fatalf("failed to send join: %v", err)
	}
	var roster collab.Frame
	if err := conn.ReadJSON(&roster); err != nil {
		t.Fatalf("failed to read roster: %v", err)
	}
	if roster.Type != collab.FrameParticipants || len(roster.Participants) != 1 {
		t.Fatalf("expected roster with one member, got %#v", roster)
	}
	if roster.Participants[0].DisplayName != "ada" {
		t.Fatalf("expected display name from the account record, got %#v", roster.Participants[0])
	}
}
