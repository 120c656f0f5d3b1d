package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresolutiondoteu/open-webui/internal/switcher"
	"github.com/coresolutiondoteu/open-webui/pkg/api"
)

func TestLoadConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/config.json", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"available_models":["gpt-a","gpt-b"],"current_model":"gpt-a"}`))
	}))
	defer srv.Close()

	cfg, err := New(srv.URL + "/").LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-a", "gpt-b"}, cfg.AvailableModels)
	assert.Equal(t, "gpt-a", cfg.CurrentModel)
}

func TestLoadConfigMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"wrong shape", `{"models":["gpt-a"]}`},
		{"wrong types", `{"available_models":"gpt-a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).LoadConfig(context.Background())
			require.Error(t, err)
			assert.Equal(t, switcher.KindMalformed, switcher.KindOf(err))
		})
	}
}

func TestLoadConfigEmptyListIsValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"available_models":[],"current_model":""}`))
	}))
	defer srv.Close()

	cfg, err := New(srv.URL).LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cfg.AvailableModels)
}

func TestLoadConfigNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).LoadConfig(context.Background())
	require.Error(t, err)
	assert.Equal(t, switcher.KindNetwork, switcher.KindOf(err))
}

func TestSwitchModel(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/switch_model", r.URL.Path)
		assert.Equal(t, "llama3:8b instruct", r.URL.Query().Get("model"))
		json.NewEncoder(w).Encode(api.SwitchResponse{Message: "Switched to llama3:8b instruct"})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).SwitchModel(context.Background(), "llama3:8b instruct")
	require.NoError(t, err)
	assert.Equal(t, "Switched to llama3:8b instruct", resp.Message)
	assert.Equal(t, 1, calls)
}

func TestSwitchModelRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: api.ErrorDetail{
			Message: `model "gpt-z" not found`,
			Type:    "model_not_found",
		}})
	}))
	defer srv.Close()

	_, err := New(srv.URL).SwitchModel(context.Background(), "gpt-z")
	require.Error(t, err)

	var se *switcher.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, switcher.KindRejected, se.Kind)
	assert.Equal(t, http.StatusNotFound, se.Status)
	assert.Equal(t, "gpt-z", se.Model)
	assert.Contains(t, se.Error(), `model "gpt-z" not found`)
}

func TestSwitchModelRejectedPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).SwitchModel(context.Background(), "gpt-a")
	assert.Equal(t, switcher.KindRejected, switcher.KindOf(err))
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestSwitchModelTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, WithTimeout(50*time.Millisecond)).SwitchModel(context.Background(), "gpt-a")
	require.Error(t, err)
	assert.Equal(t, switcher.KindNetwork, switcher.KindOf(err))
}

func TestWithTimeoutLeavesSharedClientAlone(t *testing.T) {
	shared := &http.Client{}

	c := New("http://127.0.0.1:0", WithHTTPClient(shared), WithTimeout(time.Second))

	assert.Zero(t, shared.Timeout)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
	assert.NotSame(t, shared, c.httpClient)

	New("http://127.0.0.1:0", WithHTTPClient(http.DefaultClient), WithTimeout(time.Second))
	assert.Zero(t, http.DefaultClient.Timeout)
}

func TestClientSatisfiesBackend(t *testing.T) {
	var _ switcher.Backend = New("http://127.0.0.1:0")
}
