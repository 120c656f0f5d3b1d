package tui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresolutiondoteu/open-webui/internal/apiclient"
	"github.com/coresolutiondoteu/open-webui/internal/config"
	"github.com/coresolutiondoteu/open-webui/internal/models"
	"github.com/coresolutiondoteu/open-webui/internal/runner"
	"github.com/coresolutiondoteu/open-webui/internal/server"
	"github.com/coresolutiondoteu/open-webui/internal/switcher"
	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

// harness drives an App without a terminal: the test goroutine plays the UI goroutine.
type harness struct {
	t       *testing.T
	app     *App
	updates chan func()
}

func newHarness(t *testing.T, backendURL string) *harness {
	t.Helper()
	h := &harness{t: t, updates: make(chan func(), 64)}
	h.app = New(apiclient.New(backendURL), zerolog.Nop(), Options{RequestTimeout: 2 * time.Second})
	h.app.queue = func(f func()) { h.updates <- f }
	t.Cleanup(h.app.Switcher().Close)
	return h
}

func (h *harness) drain() {
	for {
		select {
		case f := <-h.updates:
			f()
		default:
			return
		}
	}
}

// waitFor runs queued redraws until cond holds.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) load() {
	h.t.Helper()
	sw := h.app.Switcher()
	sw.Start()
	sw.Wait()
	h.waitFor("config load", func() bool {
		phase := sw.State().Phase
		return phase == switcher.PhaseLoaded || phase == switcher.PhaseFailed
	})
	h.settle()
}

// settle waits for background work and applies the last snapshot.
func (h *harness) settle() {
	h.t.Helper()
	h.app.Switcher().Wait()
	want := h.app.Switcher().State()
	h.waitFor("redraw", func() bool {
		return h.heading() == Heading(want) && !h.app.redrawPending.Load()
	})
}

func (h *harness) heading() string {
	return h.app.heading.GetText(true)
}

func (h *harness) status() string {
	return h.app.status.GetText(true)
}

// serverHandler is the real modelswitch server over a temp model config.
func serverHandler(t *testing.T, cfg *api.ModelConfig) http.Handler {
	t.Helper()
	store := models.NewStore(filepath.Join(t.TempDir(), "config.json"))
	_, err := store.Seed(cfg)
	require.NoError(t, err)

	return server.New(config.DefaultConfig(), store, &runner.NoopLauncher{}, zerolog.Nop()).Handler()
}

func startBackend(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func twoModels(current string) *api.ModelConfig {
	return &api.ModelConfig{AvailableModels: []string{"gpt-a", "gpt-b"}, CurrentModel: current}
}

type recorded struct {
	method string
	path   string
	model  string
}

// recording wraps next and keeps every switch request.
func recording(next http.Handler) (http.Handler, func() []recorded) {
	var (
		mu   sync.Mutex
		reqs []recorded
	)
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/switch_model" {
			mu.Lock()
			reqs = append(reqs, recorded{method: r.Method, path: r.URL.Path, model: r.URL.Query().Get("model")})
			mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
	return h, func() []recorded {
		mu.Lock()
		defer mu.Unlock()
		return append([]recorded(nil), reqs...)
	}
}

func TestInitialRender(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1")

	assert.Equal(t, "Current Model: ", h.heading())
	assert.Equal(t, 0, h.app.dropdown.GetOptionCount())
}

func TestLoadRendersModels(t *testing.T) {
	ts := startBackend(t, serverHandler(t, twoModels("gpt-a")))
	h := newHarness(t, ts.URL)

	h.load()

	assert.Equal(t, "Current Model: gpt-a", h.heading())
	assert.Equal(t, 2, h.app.dropdown.GetOptionCount())
	idx, text := h.app.dropdown.GetCurrentOption()
	assert.Equal(t, 0, idx)
	assert.Equal(t, "gpt-a", text)
	assert.Empty(t, h.status())
}

func TestSelectSwitchesModel(t *testing.T) {
	handler, requests := recording(serverHandler(t, twoModels("gpt-a")))
	ts := startBackend(t, handler)
	h := newHarness(t, ts.URL)
	h.load()

	// What the drop-down does when the user picks the second entry.
	h.app.dropdown.SetCurrentOption(1)
	h.settle()

	assert.Equal(t, "Current Model: gpt-b", h.heading())
	_, text := h.app.dropdown.GetCurrentOption()
	assert.Equal(t, "gpt-b", text)
	assert.Equal(t, []recorded{{method: http.MethodPost, path: "/api/switch_model", model: "gpt-b"}}, requests())
}

func TestRenderDoesNotIssueSwitch(t *testing.T) {
	handler, requests := recording(serverHandler(t, twoModels("gpt-b")))
	ts := startBackend(t, handler)
	h := newHarness(t, ts.URL)

	h.load()

	_, text := h.app.dropdown.GetCurrentOption()
	assert.Equal(t, "gpt-b", text)
	assert.Empty(t, requests())
}

func TestSelectCurrentModel(t *testing.T) {
	handler, requests := recording(serverHandler(t, twoModels("gpt-a")))
	ts := startBackend(t, handler)
	h := newHarness(t, ts.URL)
	h.load()

	h.app.dropdown.SetCurrentOption(0)
	h.settle()

	assert.Equal(t, "Current Model: gpt-a", h.heading())
	assert.Len(t, requests(), 1)
}

func TestLoadFailure(t *testing.T) {
	ts := startBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h := newHarness(t, ts.URL)

	h.load()

	assert.Equal(t, "Current Model: ", h.heading())
	assert.Equal(t, 0, h.app.dropdown.GetOptionCount())
	assert.Contains(t, h.status(), "load failed")
	assert.Contains(t, h.status(), "status 500")
}

func TestSwitchFailureKeepsCurrent(t *testing.T) {
	inner := serverHandler(t, twoModels("gpt-a"))
	ts := startBackend(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/switch_model" {
			http.Error(w, "launcher unavailable", http.StatusBadGateway)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	h := newHarness(t, ts.URL)
	h.load()

	h.app.dropdown.SetCurrentOption(1)
	h.settle()

	assert.Equal(t, "Current Model: gpt-a", h.heading())
	_, text := h.app.dropdown.GetCurrentOption()
	assert.Equal(t, "gpt-a", text)
	assert.Contains(t, h.status(), "switch to gpt-b failed")
}

func TestHeading(t *testing.T) {
	assert.Equal(t, "Current Model: ", Heading(switcher.State{}))
	assert.Equal(t, "Current Model: gpt-a", Heading(switcher.State{Current: "gpt-a"}))
}

func TestStatusLine(t *testing.T) {
	rejected := &switcher.Error{Kind: switcher.KindRejected, Op: "switch", Model: "gpt-b", Status: 404, Err: errors.New("Error: Model not found")}
	network := &switcher.Error{Kind: switcher.KindNetwork, Op: "load", Err: context.DeadlineExceeded}

	tests := []struct {
		name  string
		state switcher.State
		want  string
	}{
		{"idle", switcher.State{}, ""},
		{"loading", switcher.State{Phase: switcher.PhaseLoading}, "loading models..."},
		{"loaded", switcher.State{Phase: switcher.PhaseLoaded, Models: []string{"gpt-a"}, Current: "gpt-a"}, ""},
		{"no models", switcher.State{Phase: switcher.PhaseLoaded, Models: []string{}}, "no models available"},
		{"pending", switcher.State{Phase: switcher.PhaseLoaded, Pending: "gpt-b", Err: rejected}, "switching to gpt-b..."},
		{"switch failed", switcher.State{Phase: switcher.PhaseLoaded, Err: rejected}, "switch to gpt-b failed: rejected (status 404): Error: Model not found"},
		{"load failed", switcher.State{Phase: switcher.PhaseFailed, Err: network}, "load failed: network: context deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusLine(tt.state))
		})
	}
}
