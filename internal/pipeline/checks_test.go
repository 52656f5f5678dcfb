package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_HealthAndPredict(t *testing.T) {
	var predictBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/predict":
			buf := make([]byte, r.ContentLength)
			r.Body.Read(buf)
			predictBody = buf
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	checker := NewHTTPChecker()
	err := checker.Check(context.Background(), map[string]any{
		"healthUrl":  srv.URL + "/health",
		"predictUrl": srv.URL + "/predict",
	})
	require.NoError(t, err)
	assert.Contains(t, string(predictBody), "features")
}

func TestHTTPChecker_DerivesHealthFromBaseURL(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			hit = true
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewHTTPChecker().Check(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewHTTPChecker().Check(context.Background(), map[string]any{"healthUrl": srv.URL + "/health"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "health check failed")
}

func TestHTTPChecker_NoURLOutputs(t *testing.T) {
	err := NewHTTPChecker().Check(context.Background(), map[string]any{})
	require.Error(t, err)
}
