package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"

	"formsmith/internal/api/handlers"
	"formsmith/internal/api/middleware"
	"formsmith/internal/engine/assistant"
	"formsmith/internal/engine/delivery"
	"formsmith/internal/engine/events"
	"formsmith/internal/engine/exports"
	"formsmith/internal/engine/forms"
	"formsmith/internal/engine/history"
	"formsmith/internal/engine/identity"
	"formsmith/internal/engine/permissions"
	"formsmith/internal/platform/auth"
	"formsmith/internal/platform/config"
	"formsmith/internal/platform/database/dbtest"
	"formsmith/internal/platform/models"
	"formsmith/internal/platform/repositories"
)

const webhookSecret = "whsec_" + "c2VjcmV0LXNpZ25pbmcta2V5LWZvci10ZXN0cw=="

type chunkModel struct{ chunks []string }

func (m chunkModel) Stream(ctx context.Context, p assistant.Prompt, emit func(string) error) error {
	for _, c := range m.chunks {
		if err := emit(c); err != nil {
			return err
		}
	}
	return nil
}

type testServer struct {
	*httptest.Server
	db     *sql.DB
	tokens *auth.TokenService
}

func newTestServer(t *testing.T, model assistant.Model) *testServer {
	t.Helper()
	db := dbtest.New(t)
	ctx := context.Background()

	orgs := repositories.NewOrganizationRepository(db)
	members := repositories.NewMembershipRepository(db)
	require.NoError(t, orgs.Upsert(ctx, &models.Organization{ID: "org_1", Name: "Acme"}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "admin_1", Role: models.RoleAdmin}))
	require.NoError(t, members.Upsert(ctx, &models.Membership{OrganizationID: "org_1", UserID: "member_1", Role: models.RoleMember}))

	resolver, err := permissions.NewResolver(orgs, members)
	require.NoError(t, err)

	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", Issuer: "formsmith", AccessTokenTTL: time.Hour})
	publisher := events.Noop{}
	formsSvc := forms.NewService(db, resolver, publisher)
	dispatcher := delivery.NewDispatcher(db, config.DeliveryConfig{MaxAttempts: 3, BaseBackoff: time.Second, HTTPTimeout: time.Second, BatchSize: 10}, delivery.LogMailer{})
	verifier, err := identity.NewVerifier(webhookSecret)
	require.NoError(t, err)

	limiter := middleware.NewRateLimiter(config.RateLimitConfig{})
	t.Cleanup(limiter.Stop)

	router := NewRouter(&Dependencies{
		HealthHandler:     handlers.NewHealthHandler(db),
		FormHandler:       handlers.NewFormHandler(formsSvc),
		SubmissionHandler: handlers.NewSubmissionHandler(formsSvc),
		HistoryHandler: handlers.NewHistoryHandler(
			history.NewReader(db, resolver, repositories.NewUserRepository(db)),
			history.NewRestorer(db, resolver, publisher),
		),
		DeliveryHandler:  handlers.NewDeliveryHandler(delivery.NewService(db, resolver, dispatcher)),
		ExportHandler:    handlers.NewExportHandler(exports.NewService(db, resolver, config.ExportsConfig{PublicBaseURL: "https://forms.test"})),
		IdentityHandler:  handlers.NewIdentityHandler(verifier, identity.NewSyncer(db)),
		AssistantHandler: handlers.NewAssistantHandler(assistant.NewService(db, resolver, formsSvc, model)),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokens),
		BusinessScope:    middleware.NewBusinessScope(resolver),
		RateLimiter:      limiter,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, db: db, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := s.tokens.GenerateAccessToken(userID, userID+"@example.com")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFormRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(t, http.MethodPost, "/api/v1/forms", "", map[string]string{"title": "x"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTenantScopeRejectsStranger(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(t, http.MethodGet, "/api/v1/forms?business_id=org_1", "stranger", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFormLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)

	var form models.Form
	resp := s.do(t, http.MethodPost, "/api/v1/forms?business_id=org_1", "member_1", map[string]string{"title": "Contact"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &form)
	base := "/api/v1/forms/" + form.ID

	resp = s.do(t, http.MethodPost, base+"/fields?business_id=org_1", "member_1", map[string]interface{}{"type": "singleline", "title": "Email", "required": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var field models.Field
	decodeBody(t, resp, &field)

	resp = s.do(t, http.MethodPost, base+"/status?business_id=org_1", "member_1", map[string]string{"status": "published"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Anonymous visitors can read and submit.
	resp = s.do(t, http.MethodGet, "/api/v1/public/forms/"+form.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/v1/public/forms/"+form.ID+"/submissions", "", map[string]interface{}{"data": map[string]string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/v1/public/forms/"+form.ID+"/submissions", "", map[string]interface{}{"data": map[string]string{field.ID: "a@example.com"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var subs forms.SubmissionPage
	resp = s.do(t, http.MethodGet, base+"/submissions?business_id=org_1", "member_1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &subs)
	require.Len(t, subs.Submissions, 1)

	var page struct {
		Entries []struct {
			ID       string `json:"id"`
			EditType string `json:"edit_type"`
		} `json:"entries"`
		HasMore bool `json:"has_more"`
	}
	resp = s.do(t, http.MethodGet, base+"/history?business_id=org_1", "member_1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &page)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, "form_status_changed", page.Entries[0].EditType)
	assert.Equal(t, "form_created", page.Entries[2].EditType)

	resp = s.do(t, http.MethodPost, "/api/v1/history/"+page.Entries[0].ID+"/restore?business_id=org_1", "member_1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = s.do(t, http.MethodGet, base+"?business_id=org_1", "member_1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &form)
	assert.Equal(t, models.FormStatusDraft, form.Status)

	resp = s.do(t, http.MethodPost, "/api/v1/history/"+page.Entries[2].ID+"/restore?business_id=org_1", "member_1", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestHistoryMissingFormIsNotFoundForStranger(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.do(t, http.MethodGet, "/api/v1/forms/frm_missing/history?business_id=org_1", "stranger", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebhookRoutesAreAdminOnly(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]string{"url": "https://hooks.example.com/in"}

	resp := s.do(t, http.MethodPost, "/api/v1/webhooks?business_id=org_1", "member_1", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/api/v1/webhooks?business_id=org_1", "admin_1", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var hook models.Webhook
	decodeBody(t, resp, &hook)
	assert.NotEmpty(t, hook.Secret)
}

func TestExportTokenIsSingleUse(t *testing.T) {
	s := newTestServer(t, nil)

	var form models.Form
	resp := s.do(t, http.MethodPost, "/api/v1/forms", "user_1", map[string]string{"title": "Survey"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &form)

	resp = s.do(t, http.MethodPost, "/api/v1/forms/"+form.ID+"/exports", "user_1", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var token exports.Token
	decodeBody(t, resp, &token)
	assert.True(t, strings.HasPrefix(token.URL, "https://forms.test/export-csv?token="))

	resp = s.do(t, http.MethodGet, "/export-csv?token="+token.Token, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "Submission ID,Submitted At"))

	resp = s.do(t, http.MethodGet, "/export-csv?token="+token.Token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func signedRequest(t *testing.T, s *testServer, body []byte, sign bool) *http.Response {
	t.Helper()
	wh, err := svix.NewWebhook(webhookSecret)
	require.NoError(t, err)

	now := time.Now()
	req, err := http.NewRequest(http.MethodPost, s.URL+"/clerk/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", strconv.FormatInt(now.Unix(), 10))
	sig, err := wh.Sign("msg_1", now, body)
	require.NoError(t, err)
	if !sign {
		sig = "v1," + base64.StdEncoding.EncodeToString([]byte("forged"))
	}
	req.Header.Set("svix-signature", sig)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIdentityWebhook(t *testing.T) {
	s := newTestServer(t, nil)
	body := []byte(`{"type":"user.created","data":{"id":"user_9","first_name":"Ada","primary_email_address_id":"e1","email_addresses":[{"id":"e1","email_address":"ada@example.com"}]}}`)

	resp := signedRequest(t, s, body, false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = signedRequest(t, s, body, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	users, err := repositories.NewUserRepository(s.db).GetByIDs(context.Background(), []string{"user_9"})
	require.NoError(t, err)
	require.Contains(t, users, "user_9")
	assert.Equal(t, "ada@example.com", users["user_9"].Email)
}

func TestAssistantStream(t *testing.T) {
	s := newTestServer(t, chunkModel{chunks: []string{"Hello", ", world"}})

	var form models.Form
	resp := s.do(t, http.MethodPost, "/api/v1/forms", "user_1", map[string]string{"title": "Chat"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &form)

	resp = s.do(t, http.MethodPost, "/api/v1/forms/"+form.ID+"/chat", "user_1", map[string]string{"content": "Add an email field"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg models.ChatMessage
	decodeBody(t, resp, &msg)
	require.NotNil(t, msg.StreamID)

	resp = s.do(t, http.MethodOptions, "/ai-stream", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/ai-stream", "user_1", map[string]string{"stream_id": *msg.StreamID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", string(raw))
}

func TestAssistantStreamWithoutModel(t *testing.T) {
	s := newTestServer(t, nil)

	var form models.Form
	resp := s.do(t, http.MethodPost, "/api/v1/forms", "user_1", map[string]string{"title": "Chat"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &form)

	resp = s.do(t, http.MethodPost, "/api/v1/forms/"+form.ID+"/chat", "user_1", map[string]string{"content": "hi"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var msg models.ChatMessage
	decodeBody(t, resp, &msg)

	resp = s.do(t, http.MethodPost, "/ai-stream", "user_1", map[string]string{"stream_id": *msg.StreamID})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
