package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"syscall"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/github-contrib/internal/apperror"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_IsZero(t *testing.T) {
	assert.True(t, Credentials{}.IsZero())
	assert.False(t, Credentials{Token: "ghp_x"}.IsZero())
	assert.True(t, Credentials{AppClientID: "Iv1.abc", AppInstallationID: 7}.IsZero(), "app credentials need a key")
	assert.False(t, Credentials{AppClientID: "Iv1.abc", AppPrivateKey: []byte("pem"), AppInstallationID: 7}.IsZero())
}

func TestNewHTTPClient(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("token is sent as bearer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer ghp_secret", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client, err := NewHTTPClient(Credentials{Token: "ghp_secret"}, time.Minute, 5*time.Second, logger)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, client.Timeout)

		resp, err := client.Get(server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := NewHTTPClient(Credentials{}, time.Minute, time.Second, logger)
		assert.Error(t, err)
	})
}

func TestGitHubGateway_Ping(t *testing.T) {
	reset := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	gateway, server := setupTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rate_limit", r.URL.Path)
		fmt.Fprintf(w, `{"resources":{"core":{"limit":5000,"remaining":4321,"reset":%d}}}`, reset.Unix())
	}))
	defer server.Close()

	remaining, gotReset, err := gateway.Ping(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4321, remaining)
	assert.True(t, reset.Equal(gotReset))
}

func TestClassify(t *testing.T) {
	resp := func(status int) *http.Response {
		u, _ := url.Parse("https://api.github.com/repos/acme/api")
		return &http.Response{StatusCode: status, Header: http.Header{}, Request: &http.Request{Method: http.MethodGet, URL: u}}
	}
	tooMany := resp(http.StatusTooManyRequests)
	tooMany.Header.Set("Retry-After", "7")
	abuseAfter := 30 * time.Second

	testCases := []struct {
		name      string
		err       error
		wantKind  apperror.Kind
		wantAfter time.Duration
	}{
		{name: "nil", err: nil},
		{
			name:      "abuse limit",
			err:       &github.AbuseRateLimitError{Response: resp(http.StatusForbidden), RetryAfter: &abuseAfter},
			wantKind:  apperror.KindRateLimited,
			wantAfter: 30 * time.Second,
		},
		{name: "empty repository", err: &github.ErrorResponse{Response: resp(http.StatusConflict), Message: "Git Repository is empty."}, wantKind: apperror.KindRepositoryEmpty},
		{name: "other conflict", err: &github.ErrorResponse{Response: resp(http.StatusConflict), Message: "merge conflict"}, wantKind: apperror.KindFatal},
		{name: "too many requests", err: &github.ErrorResponse{Response: tooMany}, wantKind: apperror.KindRateLimited, wantAfter: 7 * time.Second},
		{name: "server error", err: &github.ErrorResponse{Response: resp(http.StatusServiceUnavailable)}, wantKind: apperror.KindTransient},
		{name: "not found", err: &github.ErrorResponse{Response: resp(http.StatusNotFound)}, wantKind: apperror.KindFatal},
		{name: "canceled", err: context.Canceled, wantKind: apperror.KindFatal},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), wantKind: apperror.KindTransient},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, wantKind: apperror.KindTransient},
		{name: "connection reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, wantKind: apperror.KindTransient},
		{name: "unknown", err: errors.New("boom"), wantKind: apperror.KindFatal},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify("op", tc.err)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.wantKind, apperror.KindOf(err))
			assert.Equal(t, tc.wantAfter, apperror.RetryAfterOf(err))
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
