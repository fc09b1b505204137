package app

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/specialistvlad/codebox/internal/config"
	"github.com/specialistvlad/codebox/internal/registry"
	"github.com/specialistvlad/codebox/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing, logging text
// into the returned buffer at debug level unless the overrides say
// otherwise. The app is closed when the test ends.
func SetupAppTest(t *testing.T, appConfig *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	if appConfig.Overrides.LogLevel == nil {
		appConfig.Overrides.LogLevel = config.Ptr("debug")
	}
	appConfig.Overrides.LogFormat = config.Ptr("text")
	testApp, err := NewApp(logBuffer, appConfig, modules...)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = testApp.Close(ctx)
		if os.Getenv("CODEBOX_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
