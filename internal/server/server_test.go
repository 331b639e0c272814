package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nordlayer-bot/internal/notify"
)

type fakeDispatcher struct {
	events []notify.StatusEvent
	err    error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, ev notify.StatusEvent) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.events = append(d.events, ev)
	return 1, nil
}

func newTestServer(d *fakeDispatcher) *httptest.Server {
	return httptest.NewServer(New("127.0.0.1:0", d, zap.NewNop()).Handler())
}

func TestHealth(t *testing.T) {
	ts := newTestServer(&fakeDispatcher{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestWebhookStatusChange(t *testing.T) {
	d := &fakeDispatcher{}
	ts := newTestServer(d)
	defer ts.Close()

	payload := `{"type":"status_change","data":{"order_id":42,"customer_email":"ann@x.com","new_status":"ready"}}`
	resp, err := http.Post(ts.URL+"/webhook/notifications", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, d.events, 1)
	assert.Equal(t, int64(42), d.events[0].OrderID)
	assert.Equal(t, "ann@x.com", d.events[0].CustomerEmail)
	assert.Equal(t, "ready", d.events[0].NewStatus)
}

func TestWebhookRejectsMalformedJSON(t *testing.T) {
	d := &fakeDispatcher{}
	ts := newTestServer(d)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook/notifications", "application/json", bytes.NewBufferString(`{not json`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, d.events)
}

func TestWebhookRejectsUnknownType(t *testing.T) {
	d := &fakeDispatcher{}
	ts := newTestServer(d)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/webhook/notifications", "application/json",
		bytes.NewBufferString(`{"type":"promo_blast","data":{}}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, d.events)
}

func TestWebhookDispatchErrorIsUnprocessable(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("no email")}
	ts := newTestServer(d)
	defer ts.Close()

	payload := `{"type":"status_change","data":{"order_id":1,"new_status":"ready"}}`
	resp, err := http.Post(ts.URL+"/webhook/notifications", "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}
