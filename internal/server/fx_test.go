package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/private-sauna-availability/internal/config"
	memorypublisher "github.com/JakeFAU/private-sauna-availability/internal/publisher/memory"
	localstorage "github.com/JakeFAU/private-sauna-availability/internal/storage/local"
	memorystorage "github.com/JakeFAU/private-sauna-availability/internal/storage/memory"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 8080},
		Scraper: config.ScraperConfig{Concurrency: 1, SourceTimeoutSeconds: 5, HorizonDays: 7, Timezone: "Asia/Tokyo"},
		HTTP:    config.HTTPConfig{TimeoutSeconds: 5},
		Health:  config.HealthConfig{AlertThreshold: 3},
		Notify:  config.NotifyConfig{Timezone: "Asia/Tokyo"},
		Artifacts: config.ArtifactsConfig{
			Backend: "none",
		},
		Logging: config.LoggingConfig{Level: "error"},
		Sources: config.SourcesConfig{Enabled: []string{"tenjin", "gflow"}},
	}
}

func TestBuildWiresAPI(t *testing.T) {
	t.Parallel()

	app, err := Build(context.Background(), testConfig())
	require.NoError(t, err)
	require.Nil(t, app.browser)
	require.Nil(t, app.eventHub)
	require.Nil(t, app.subscriber)

	sources := app.orchestrator.Sources()
	require.Len(t, sources, 2)
	require.Equal(t, "tenjin", sources[0].Key)
	require.Equal(t, "gflow", sources[1].Key)

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"key":"tenjin"`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, app.Close(ctx))
}

func TestBuildRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Sources.Enabled = []string{"nowhere"}
	_, err := Build(context.Background(), cfg)
	require.ErrorContains(t, err, "nowhere")
}

func TestSetupStorageBackends(t *testing.T) {
	t.Parallel()

	app := &App{cfg: testConfig(), logger: zap.NewNop()}

	store, err := setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.Nil(t, store)

	app.cfg.Artifacts.Backend = "memory"
	store, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &memorystorage.BlobStore{}, store)

	app.cfg.Artifacts.Backend = "local"
	app.cfg.Artifacts.Local.BaseDir = t.TempDir()
	store, err = setupStorage(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &localstorage.BlobStore{}, store)
}

func TestSetupPublisherFallsBackToMemory(t *testing.T) {
	t.Parallel()

	app := &App{cfg: testConfig(), logger: zap.NewNop()}
	pub, err := setupPublisher(context.Background(), app)
	require.NoError(t, err)
	require.IsType(t, &memorypublisher.Publisher{}, pub)
	require.Nil(t, app.pubsubClient)
}

func TestSetupSubscriberNeedsSubscriptionAndProject(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.PubSub.RefreshSubscription = "refresh"
	app := &App{cfg: cfg, logger: zap.NewNop()}
	sub, err := setupSubscriber(context.Background(), app)
	require.NoError(t, err)
	require.Nil(t, sub)
	require.Nil(t, app.pubsubClient)
}
