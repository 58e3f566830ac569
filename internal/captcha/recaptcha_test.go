package captcha

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "shh", r.PostForm.Get("secret"))

		res := Result{Success: r.PostForm.Get("response") == "good"}
		if !res.Success {
			res.ErrorCodes = []string{"invalid-input-response"}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(res)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVerify(t *testing.T) {
	srv := newProvider(t)
	v := NewVerifier(Config{Secret: "shh", VerifyURL: srv.URL}, srv.Client())
	ctx := context.Background()

	assert.NoError(t, v.Verify(ctx, "good"))

	err := v.Verify(ctx, "bad")
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "invalid-input-response")

	assert.ErrorIs(t, v.Verify(ctx, " "), ErrMissing)
}

func TestCheckReturnsProviderAnswer(t *testing.T) {
	srv := newProvider(t)
	v := NewVerifier(Config{Secret: "shh", VerifyURL: srv.URL}, srv.Client())

	res, err := v.Check(context.Background(), "bad")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"invalid-input-response"}, res.ErrorCodes)
}

func TestVerifyProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	v := NewVerifier(Config{Secret: "shh", VerifyURL: srv.URL}, srv.Client())

	err := v.Verify(context.Background(), "good")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}
