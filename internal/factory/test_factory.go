package factory

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/reaandrew/snakes-and-ladders-sub000/internal/dependencies/mocks"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/storage/memory"
	"github.com/reaandrew/snakes-and-ladders-sub000/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	FakeClock     *clockwork.FakeClock
	MockRandom    *mocks.MockRandom
	MockPublisher *mocks.MockPublisher
}

// NewTestApp creates an App configured for testing with mocked dependencies
func NewTestApp() *TestApp {
	return NewTestAppWithConfig(Config{})
}

// NewTestAppWithConfig is NewTestApp with component settings overridden
func NewTestAppWithConfig(cfg Config) *TestApp {
	return NewTestAppWithStorage(memory.New(), cfg)
}

// NewTestAppWithStorage is NewTestAppWithConfig over a caller-supplied
// storage backend. Set cfg.StorageType to match it.
func NewTestAppWithStorage(store storage.Storage, cfg Config) *TestApp {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	mockPublisher := mocks.NewMockPublisher()

	app := newWithDependencies(store, fakeClock, mockRandom, mockPublisher, cfg, testutil.NopLogger())

	return &TestApp{
		App:           app,
		FakeClock:     fakeClock,
		MockRandom:    mockRandom,
		MockPublisher: mockPublisher,
	}
}
