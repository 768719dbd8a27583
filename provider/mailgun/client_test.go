package mailgun

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shineum/mailgun-lite/email"
)

func quietClient() *Client {
	return NewClient(WithLogger(discardLogger()))
}

func testConfig(serverURL string) Config {
	return Config{APIKey: "k", Domain: "d.com", BaseURL: serverURL + "/"}
}

func TestDeliver_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/d.com/messages", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("api:k")), r.Header.Get("Authorization"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		values, err := url.ParseQuery(string(body))
		assert.NoError(t, err)
		assert.Equal(t, "s@x.com", values.Get("from"))
		assert.Equal(t, "r@x.com", values.Get("to"))
		assert.Equal(t, "Hi", values.Get("subject"))
		assert.Equal(t, "Hello", values.Get("text"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"id":"<20260101.1@d.com>","message":"Queued. Thank you."}`)
	}))
	defer server.Close()

	msg := &email.Email{
		From:     email.NewAddress("", "s@x.com"),
		To:       email.Addresses("r@x.com"),
		Subject:  "Hi",
		TextBody: "Hello",
	}

	resp, err := quietClient().Deliver(context.Background(), msg, testConfig(server.URL))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":"<20260101.1@d.com>","message":"Queued. Thank you."}`, string(resp.Body))
	assert.Equal(t, "<20260101.1@d.com>", resp.ID)
	assert.Equal(t, "Queued. Thank you.", resp.Message)
}

func TestDeliver_ServerErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "bad")
	}))
	defer server.Close()

	msg := &email.Email{
		From:     email.NewAddress("", "s@x.com"),
		To:       email.Addresses("r@x.com"),
		Subject:  "Hi",
		TextBody: "Hello",
	}

	resp, err := quietClient().Deliver(context.Background(), msg, testConfig(server.URL))
	require.Error(t, err)
	assert.Nil(t, resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "mailgun", apiErr.Service)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "bad", apiErr.Body)
	assert.Empty(t, apiErr.Message)
	assert.Contains(t, string(apiErr.RequestBody), "subject=Hi")
	assert.ErrorIs(t, err, ErrStatus)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, "mailgun API error (HTTP 500): bad", err.Error())
}

func TestDeliver_JSONErrorMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":"'from' parameter is missing"}`)
	}))
	defer server.Close()

	_, err := quietClient().Deliver(context.Background(), baseMessage(), testConfig(server.URL))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "'from' parameter is missing", apiErr.Message)
	assert.JSONEq(t, `{"message":"'from' parameter is missing"}`, apiErr.Body)
	assert.Contains(t, err.Error(), "HTTP 400")
}

func TestDeliver_StatusBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "200 ok", status: http.StatusOK},
		{name: "202 accepted", status: http.StatusAccepted},
		{name: "299 upper bound", status: 299},
		{name: "300 first failure", status: 300, wantErr: true},
		{name: "401 unauthorized", status: http.StatusUnauthorized, wantErr: true},
		{name: "429 too many requests", status: http.StatusTooManyRequests, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			resp, err := quietClient().Deliver(context.Background(), baseMessage(), testConfig(server.URL))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestDeliver_NoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := quietClient().Deliver(context.Background(), baseMessage(), testConfig(server.URL))
	require.ErrorIs(t, err, ErrStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliver_RedirectIsStatusError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
	}{
		{name: "301 moved permanently", status: http.StatusMovedPermanently},
		{name: "302 found", status: http.StatusFound},
		{name: "303 see other", status: http.StatusSeeOther},
		{name: "307 temporary redirect", status: http.StatusTemporaryRedirect},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var posts, followed atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/elsewhere" {
					followed.Add(1)
					w.WriteHeader(http.StatusOK)
					return
				}
				posts.Add(1)
				w.Header().Set("Location", "/elsewhere")
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			resp, err := quietClient().Deliver(context.Background(), baseMessage(), testConfig(server.URL))
			require.ErrorIs(t, err, ErrStatus)
			assert.Nil(t, resp)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, int32(1), posts.Load())
			assert.Zero(t, followed.Load())
		})
	}
}

func TestDeliver_CustomHTTPClientDoesNotFollowRedirects(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/elsewhere" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/elsewhere", http.StatusFound)
	}))
	defer server.Close()

	httpClient := &http.Client{}
	client := NewClient(WithHTTPClient(httpClient), WithLogger(discardLogger()))

	_, err := client.Deliver(context.Background(), baseMessage(), testConfig(server.URL))
	require.ErrorIs(t, err, ErrStatus)
	assert.Nil(t, httpClient.CheckRedirect, "caller's client must not be modified")
}

func TestDeliver_Multipart(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "sender@example.com", r.FormValue("from"))
		assert.Equal(t, "x", r.FormValue("o:tag"))

		files := r.MultipartForm.File["attachment"]
		if assert.Len(t, files, 3) {
			assert.Equal(t, "C.txt", files[0].Filename)
			assert.Equal(t, "B.txt", files[1].Filename)
			assert.Equal(t, "A.txt", files[2].Filename)

			f, err := files[0].Open()
			assert.NoError(t, err)
			data, _ := io.ReadAll(f)
			f.Close()
			assert.Equal(t, "c", string(data))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	msg := baseMessage()
	msg.Options = map[string]any{"tag": "x"}
	msg.Attachments = []email.Attachment{
		{Filename: "A.txt", Content: []byte("a")},
		{Filename: "B.txt", Content: []byte("b")},
		{Filename: "C.txt", Content: []byte("c")},
	}

	resp, err := quietClient().Deliver(context.Background(), msg, testConfig(server.URL))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeliver_TransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	resp, err := quietClient().Deliver(context.Background(), baseMessage(), testConfig(baseURL))
	require.Error(t, err)
	assert.Nil(t, resp)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Zero(t, apiErr.StatusCode)
	assert.Equal(t, "mailgun", apiErr.Service)
	assert.Contains(t, apiErr.Reason, "HTTP request failed")
	assert.NotNil(t, errors.Unwrap(err))
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrStatus)
}

func TestDeliver_CancelledContext(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := quietClient().Deliver(ctx, baseMessage(), testConfig(server.URL))
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestDeliver_BaseURLReadPerCall(t *testing.T) {
	t.Parallel()

	newServer := func(hits *atomic.Int32) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
	}

	var firstHits, secondHits atomic.Int32
	first := newServer(&firstHits)
	defer first.Close()
	second := newServer(&secondHits)
	defer second.Close()

	client := quietClient()
	_, err := client.Deliver(context.Background(), baseMessage(), testConfig(first.URL))
	require.NoError(t, err)
	_, err = client.Deliver(context.Background(), baseMessage(), testConfig(second.URL))
	require.NoError(t, err)

	assert.Equal(t, int32(1), firstHits.Load())
	assert.Equal(t, int32(1), secondHits.Load())
}

func TestDeliver_CustomHTTPClient(t *testing.T) {
	t.Parallel()

	var used atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	httpClient := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		used.Store(true)
		return http.DefaultTransport.RoundTrip(r)
	})}

	client := NewClient(WithHTTPClient(httpClient), WithLogger(discardLogger()))
	_, err := client.Deliver(context.Background(), baseMessage(), testConfig(server.URL))
	require.NoError(t, err)
	assert.True(t, used.Load())
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
