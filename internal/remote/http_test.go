package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dieee-93/g-admin-sync/internal/command"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *HTTPService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := NewHTTPService(HTTPServiceOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	return svc
}

func TestNewHTTPService_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPService(HTTPServiceOptions{})
	assert.Error(t, err)
}

func TestHTTPService_InsertUnwrapsEnvelope(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/materials", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"m1","name":"flour"}}`))
	})

	got, err := svc.Insert(context.Background(), "materials", json.RawMessage(`{"name":"flour"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1","name":"flour"}`, string(got))
}

func TestHTTPService_BareBodyPassesThrough(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"m1"}`))
	})

	got, err := svc.Insert(context.Background(), "materials", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1"}`, string(got))
}

func TestHTTPService_UpdateSendsPatch(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/sales/s1", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"s1"}}`))
	})

	_, err := svc.Update(context.Background(), "sales", "s1", json.RawMessage(`{"status":"confirmed"}`))
	require.NoError(t, err)
}

func TestHTTPService_DeleteIgnoresEmptyBody(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/sales/s1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, svc.Delete(context.Background(), "sales", "s1"))
}

func TestHTTPService_ErrorEnvelopeBecomesRemoteError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"23505","message":"duplicate key"}}`))
	})

	_, err := svc.Insert(context.Background(), "materials", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, command.KindConflict, Classify(err))
}

func TestHTTPService_PlainErrorBodySynthesizesCode(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	_, err := svc.Insert(context.Background(), "materials", json.RawMessage(`{}`))
	require.Error(t, err)

	var re *Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "http_502", re.Code)
	assert.Equal(t, "upstream unavailable", re.Message)
}

func TestHTTPService_TransportFailureClassifiesAsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections from here on

	svc, err := NewHTTPService(HTTPServiceOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.Insert(context.Background(), "materials", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, command.KindNetwork, Classify(err))
}
