package shooter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teamchat/docshots/packages/capture"
	"github.com/teamchat/docshots/packages/chatapi"
	"github.com/teamchat/docshots/packages/httpc"
	"github.com/teamchat/docshots/packages/manifest"
	"github.com/teamchat/docshots/packages/registry"
)

// fakeApp fakes the chat application: the REST API the shooter sets up
// bots and streams through, plus the external webhook endpoints.
type fakeApp struct {
	t *testing.T

	botCreates  int
	messages    []int64 // ids of messages sent by the single test bot
	nextID      int64
	streams     map[string]bool
	webhookCode int  // status the webhook endpoint answers with
	webhookMute bool // 200 but produce no message
	lastWebhook *http.Request
	lastQuery   map[string]string
}

func newFakeApp(t *testing.T) (*fakeApp, *httptest.Server) {
	f := &fakeApp{
		t:           t,
		streams:     make(map[string]bool),
		webhookCode: http.StatusOK,
		nextID:      500,
	}
	return f, httptest.NewServer(f)
}

func (f *fakeApp) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/v1/external/") {
		f.serveWebhook(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/v1")
	switch {
	case r.Method == "GET" && path == "/bots":
		if f.botCreates == 0 {
			fmt.Fprint(w, `{"result": "success", "bots": []}`)
			return
		}
		fmt.Fprint(w, `{"result": "success", "bots": [{"short_name": "github-bot", "user_id": 7, "email": "github-bot@localhost", "full_name": "GitHub Bot", "api_key": "BOTKEY"}]}`)

	case r.Method == "POST" && path == "/bots":
		f.botCreates++
		fmt.Fprint(w, `{"result": "success", "bot": {"user_id": 7, "email": "github-bot@localhost", "full_name": "GitHub Bot", "api_key": "BOTKEY"}}`)

	case r.Method == "POST" && path == "/streams":
		require.NoError(f.t, r.ParseForm())
		f.streams[r.PostForm.Get("stream")] = true
		fmt.Fprint(w, `{"result": "success"}`)

	case r.Method == "GET" && path == "/messages":
		parts := make([]string, 0, len(f.messages))
		for i := len(f.messages) - 1; i >= 0; i-- {
			parts = append(parts, fmt.Sprintf(`{"id": %d}`, f.messages[i]))
		}
		fmt.Fprintf(w, `{"result": "success", "messages": [%s]}`, strings.Join(parts, ","))

	case r.Method == "DELETE" && strings.HasPrefix(path, "/messages/"):
		id, _ := strconv.ParseInt(strings.TrimPrefix(path, "/messages/"), 10, 64)
		kept := f.messages[:0]
		for _, mid := range f.messages {
			if mid != id {
				kept = append(kept, mid)
			}
		}
		f.messages = kept
		fmt.Fprint(w, `{"result": "success"}`)

	case r.Method == "POST" && path == "/messages":
		f.nextID++
		f.messages = append(f.messages, f.nextID)
		fmt.Fprintf(w, `{"result": "success", "id": %d}`, f.nextID)

	default:
		http.Error(w, `{"result": "error", "msg": "unhandled"}`, http.StatusNotFound)
	}
}

func (f *fakeApp) serveWebhook(w http.ResponseWriter, r *http.Request) {
	f.lastWebhook = r
	f.lastQuery = make(map[string]string)
	for k := range r.URL.Query() {
		f.lastQuery[k] = r.URL.Query().Get(k)
	}

	if f.webhookCode != http.StatusOK {
		w.WriteHeader(f.webhookCode)
		fmt.Fprint(w, `{"result": "error", "msg": "unknown webhook event"}`)
		return
	}

	if !f.webhookMute {
		f.nextID++
		f.messages = append(f.messages, f.nextID)
	}
	fmt.Fprint(w, `{"result": "success"}`)
}

func writeFixture(t *testing.T, dir, integration, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, integration), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, integration, name), []byte(content), 0o644))
}

func captureScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screenshot.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho \"$1 $3\" > \"$2\"\n"), 0o755))
	return path
}

func githubIntegration() *registry.Integration {
	return &registry.Integration{
		Name:        "github",
		DisplayName: "GitHub",
		Kind:        registry.KindWebhook,
		Stream:      "github",
		URLPath:     "/api/v1/external/github",
		Headers: func(fixtureName string) map[string]string {
			return map[string]string{"HTTP_X_GITHUB_EVENT": "push"}
		},
	}
}

func newTestShooter(t *testing.T, siteURL, fixturesDir string, opts ...Option) *Shooter {
	httpClient := httpc.NewClient()
	chat := chatapi.NewClient(httpClient, siteURL, "admin@localhost", "ADMINKEY")
	capt := capture.NewRunner("sh", captureScript(t))
	imageDir := filepath.Join(t.TempDir(), "images")
	return New(httpClient, chat, capt, siteURL, fixturesDir, imageDir, "admin@localhost", opts...)
}

func TestShoot_WebhookCaptured(t *testing.T) {
	app, server := newFakeApp(t)
	defer server.Close()

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "github", "push__1_commit.json", `{"ref": "refs/heads/main"}`)

	sh := newTestShooter(t, server.URL, fixtures)
	result, err := sh.Shoot(context.Background(), githubIntegration(),
		registry.ScreenshotConfig{FixtureName: "push__1_commit.json"})
	require.NoError(t, err)

	assert.Equal(t, StatusCaptured, result.Status)
	assert.FileExists(t, result.ImagePath)

	assert.Contains(t, result.Target, "/api/v1/external/github")

	// Request construction: base params and expected headers made it over.
	assert.Equal(t, "BOTKEY", app.lastQuery["api_key"])
	assert.Equal(t, "github", app.lastQuery["stream"])
	assert.Equal(t, "push", app.lastWebhook.Header.Get("X-Github-Event"))
	assert.True(t, app.streams["github"])
}

func TestShoot_BotSetupIdempotent(t *testing.T) {
	app, server := newFakeApp(t)
	defer server.Close()

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "github", "push__1_commit.json", `{"ref": "x"}`)

	sh := newTestShooter(t, server.URL, fixtures)
	cfg := registry.ScreenshotConfig{FixtureName: "push__1_commit.json"}

	_, err := sh.Shoot(context.Background(), githubIntegration(), cfg)
	require.NoError(t, err)
	_, err = sh.Shoot(context.Background(), githubIntegration(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, app.botCreates)
}

func TestShoot_DeliveryFailed(t *testing.T) {
	app, server := newFakeApp(t)
	defer server.Close()
	app.webhookCode = http.StatusBadRequest

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "github", "push__1_commit.json", `{"ref": "x"}`)

	sh := newTestShooter(t, server.URL, fixtures)
	result, err := sh.Shoot(context.Background(), githubIntegration(),
		registry.ScreenshotConfig{FixtureName: "push__1_commit.json"})

	// Non-2xx is an item-level failure, not a fatal error.
	require.NoError(t, err)
	assert.Equal(t, StatusDeliveryFailed, result.Status)
	assert.True(t, result.Failed())
	assert.Equal(t, http.StatusBadRequest, result.ResponseStatus)
	assert.Contains(t, result.ResponseBody, "unknown webhook event")
	assert.NoFileExists(t, result.ImagePath)
}

func TestShoot_CaptureSkippedWhenNoMessage(t *testing.T) {
	app, server := newFakeApp(t)
	defer server.Close()
	app.webhookMute = true

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "github", "push__1_commit.json", `{"ref": "x"}`)

	sh := newTestShooter(t, server.URL, fixtures)
	result, err := sh.Shoot(context.Background(), githubIntegration(),
		registry.ScreenshotConfig{FixtureName: "push__1_commit.json"})

	require.NoError(t, err)
	assert.Equal(t, StatusCaptureSkipped, result.Status)
	assert.NoFileExists(t, result.ImagePath)
}

func TestShoot_DirectIntegration(t *testing.T) {
	_, server := newFakeApp(t)
	defer server.Close()

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "capistrano", "deploy.json", `{"subject": "Deploy", "body": "All good."}`)

	i := &registry.Integration{
		Name:        "capistrano",
		DisplayName: "Capistrano",
		Kind:        registry.KindDirect,
		Stream:      "capistrano",
	}

	sh := newTestShooter(t, server.URL, fixtures)
	result, err := sh.Shoot(context.Background(), i,
		registry.ScreenshotConfig{FixtureName: "deploy.json"})
	require.NoError(t, err)

	assert.Equal(t, StatusCaptured, result.Status)
	assert.FileExists(t, result.ImagePath)
}

func TestShoot_DirectIntegrationMissingField(t *testing.T) {
	_, server := newFakeApp(t)
	defer server.Close()

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "capistrano", "deploy.json", `{"subject": "Deploy"}`)

	i := &registry.Integration{
		Name:   "capistrano",
		Kind:   registry.KindDirect,
		Stream: "capistrano",
	}

	sh := newTestShooter(t, server.URL, fixtures)
	_, err := sh.Shoot(context.Background(), i,
		registry.ScreenshotConfig{FixtureName: "deploy.json"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadFixture)
	assert.Contains(t, err.Error(), "body")
}

func TestShoot_ServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "github", "push__1_commit.json", `{"ref": "x"}`)

	sh := newTestShooter(t, url, fixtures)
	_, err := sh.Shoot(context.Background(), githubIntegration(),
		registry.ScreenshotConfig{FixtureName: "push__1_commit.json"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServerUnreachable)
	assert.Contains(t, err.Error(), "start the development server")
}

func TestShoot_InvalidConfig(t *testing.T) {
	sh := newTestShooter(t, "http://localhost:1", t.TempDir())

	_, err := sh.Shoot(context.Background(), githubIntegration(),
		registry.ScreenshotConfig{FixtureName: "x.json", PayloadAsQueryParam: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payload_param_name")
}

func TestShoot_RecordsManifest(t *testing.T) {
	_, server := newFakeApp(t)
	defer server.Close()

	fixtures := t.TempDir()
	writeFixture(t, fixtures, "github", "push__1_commit.json", `{"ref": "x"}`)

	store, err := manifest.Open(filepath.Join(t.TempDir(), "manifest.db"))
	require.NoError(t, err)
	defer store.Close()

	sh := newTestShooter(t, server.URL, fixtures, WithManifest(store))
	result, err := sh.Shoot(context.Background(), githubIntegration(),
		registry.ScreenshotConfig{FixtureName: "push__1_commit.json"})
	require.NoError(t, err)
	require.Equal(t, StatusCaptured, result.Status)

	entries, err := store.History("github")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, manifest.StatusCaptured, entries[0].Status)
	assert.Equal(t, "push__1_commit.json", entries[0].Fixture)
	assert.NotZero(t, entries[0].MessageID)
}

func TestImagePath(t *testing.T) {
	sh := &Shooter{imageDir: filepath.Join("static", "images", "integrations")}
	i := &registry.Integration{Name: "github"}

	assert.Equal(t,
		filepath.Join("static", "images", "integrations", "github", "001.png"),
		sh.imagePath(i, registry.ScreenshotConfig{}))

	assert.Equal(t,
		filepath.Join("docs", "images", "002.png"),
		sh.imagePath(i, registry.ScreenshotConfig{ImageDir: filepath.Join("docs", "images"), ImageName: "002.png"}))
}
