package treeherder

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/3leaps/thsubmit/pkg/platform"
)

type fakeTreeherder struct {
	server      *httptest.Server
	revisionMap map[string]string
	postStatus  int

	lastAuth      string
	lastUserAgent string
	lastBody      []byte
	lastRepo      string
	lookups       int
	posts         int
}

func newFakeTreeherder(t *testing.T) *fakeTreeherder {
	t.Helper()
	f := &fakeTreeherder{
		revisionMap: map[string]string{},
		postStatus:  http.StatusOK,
	}

	r := chi.NewRouter()
	r.Get("/api/project/{repo}/resultset/", func(w http.ResponseWriter, r *http.Request) {
		f.lookups++
		f.lastUserAgent = r.Header.Get("User-Agent")
		rev := r.URL.Query().Get("revision")
		w.Header().Set("Content-Type", "application/json")
		hash, ok := f.revisionMap[chi.URLParam(r, "repo")+"@"+rev]
		if !ok {
			_, _ = w.Write([]byte(`{"meta":{"count":0},"results":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]string{{"revision": rev, "revision_hash": hash}},
		})
	})
	r.Post("/api/project/{repo}/jobs/", func(w http.ResponseWriter, r *http.Request) {
		f.posts++
		f.lastRepo = chi.URLParam(r, "repo")
		f.lastAuth = r.Header.Get("Authorization")
		f.lastBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(f.postStatus)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})

	f.server = httptest.NewServer(r)
	t.Cleanup(f.server.Close)
	return f
}

func newTestClient(t *testing.T, rawURL string, creds Credentials) *Client {
	t.Helper()
	c, err := NewClient(rawURL, creds, WithLogger(zaptest.NewLogger(t)), WithUserAgent("thsubmit-test"))
	require.NoError(t, err)
	c.now = func() time.Time { return time.Unix(1353832234, 0) }
	c.nonce = func() string { return "j4h3g2" }
	return c
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr string
	}{
		{name: "empty url", url: "", wantErr: "treeherder url is not set"},
		{name: "whitespace url", url: "   ", wantErr: "treeherder url is not set"},
		{name: "bad scheme", url: "ftp://treeherder.example", wantErr: "scheme must be http or https"},
		{name: "missing host", url: "https://", wantErr: "host is required"},
		{name: "valid", url: "https://treeherder.example/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.url, Credentials{})
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.url, c.BaseURL())
		})
	}

	_, err := NewClient("", Credentials{})
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestClient_RevisionHash(t *testing.T) {
	f := newFakeTreeherder(t)
	f.revisionMap["demo-repo@abcdef012345"] = "rh-1234"
	c := newTestClient(t, f.server.URL+"/", Credentials{})

	t.Run("found", func(t *testing.T) {
		hash, err := c.RevisionHash(context.Background(), "demo-repo", "abcdef012345")
		require.NoError(t, err)
		assert.Equal(t, "rh-1234", hash)
		assert.Equal(t, "thsubmit-test", f.lastUserAgent)
	})

	t.Run("not ingested", func(t *testing.T) {
		_, err := c.RevisionHash(context.Background(), "demo-repo", "ffffffffffff")
		require.Error(t, err)
		assert.True(t, IsRevisionNotFound(err))
		assert.Contains(t, err.Error(), "not been ingested")
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, Credentials{})
		_, err := c.RevisionHash(context.Background(), "demo-repo", "abcdef012345")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Equal(t, http.StatusServiceUnavailable, StatusCode(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		}))
		defer srv.Close()

		c := newTestClient(t, srv.URL, Credentials{})
		_, err := c.RevisionHash(context.Background(), "demo-repo", "abcdef012345")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decode response")
	})
}

func TestClient_ResultSetURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{base: "https://th.example", want: "https://th.example/api/project/demo/resultset/?revision=abc"},
		{base: "https://th.example/", want: "https://th.example/api/project/demo/resultset/?revision=abc"},
		{base: "https://th.example/th/", want: "https://th.example/th/api/project/demo/resultset/?revision=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c, err := NewClient(tt.base, Credentials{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.resultSetURL("demo", "abc"))
		})
	}
}

func TestClient_JobsURL(t *testing.T) {
	c, err := NewClient("https://th.example/some/path", Credentials{})
	require.NoError(t, err)
	assert.Equal(t, "https://th.example/#/jobs?repo=demo-repo&revision=abcdef012345", c.JobsURL("demo-repo", "abcdef012345"))
}

func TestClient_PostCollection(t *testing.T) {
	f := newFakeTreeherder(t)
	creds := Credentials{ClientID: "client", Secret: "secret"}
	c := newTestClient(t, f.server.URL, creds)

	rec := &JobRecord{Project: "demo-repo", Revision: "abcdef012345", RevisionHash: "rh-1234"}
	rec.SetGUID("guid-1")
	rec.SetPlatform(platform.Platform{OSName: "linux", Platform: "linux64", Architecture: "x86_64"})
	rec.Job.State = JobStateRunning

	err := c.PostCollection(context.Background(), "demo-repo", NewJobCollection(rec))
	require.NoError(t, err)
	assert.Equal(t, 1, f.posts)
	assert.Equal(t, "demo-repo", f.lastRepo)

	var sent []JobRecord
	require.NoError(t, json.Unmarshal(f.lastBody, &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, "guid-1", sent[0].JobGUID)
	assert.Equal(t, "guid-1", sent[0].Job.JobGUID)
	assert.Equal(t, JobStateRunning, sent[0].Job.State)

	t.Run("hawk header", func(t *testing.T) {
		require.True(t, strings.HasPrefix(f.lastAuth, `Hawk id="client", ts="1353832234", nonce="j4h3g2", `))

		sum := sha256.Sum256([]byte("hawk.1.payload\napplication/json\n" + string(f.lastBody) + "\n"))
		wantHash := base64.StdEncoding.EncodeToString(sum[:])
		assert.Contains(t, f.lastAuth, `hash="`+wantHash+`"`)

		host := strings.TrimPrefix(f.server.URL, "http://")
		h, p, _ := strings.Cut(host, ":")
		normalized := "hawk.1.header\n1353832234\nj4h3g2\nPOST\n/api/project/demo-repo/jobs/\n" + h + "\n" + p + "\n" + wantHash + "\n\n"
		mac := hmac.New(sha256.New, []byte("secret"))
		_, _ = mac.Write([]byte(normalized))
		wantMAC := base64.StdEncoding.EncodeToString(mac.Sum(nil))
		assert.Contains(t, f.lastAuth, `mac="`+wantMAC+`"`)
	})
}

func TestClient_PostCollectionFailures(t *testing.T) {
	t.Run("missing credentials never sends", func(t *testing.T) {
		f := newFakeTreeherder(t)
		c := newTestClient(t, f.server.URL, Credentials{ClientID: "client"})

		err := c.PostCollection(context.Background(), "demo-repo", NewJobCollection(&JobRecord{}))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.Equal(t, 0, f.posts)
	})

	t.Run("unauthorized", func(t *testing.T) {
		f := newFakeTreeherder(t)
		f.postStatus = http.StatusForbidden
		c := newTestClient(t, f.server.URL, Credentials{ClientID: "client", Secret: "wrong"})

		err := c.PostCollection(context.Background(), "demo-repo", NewJobCollection(&JobRecord{}))
		require.Error(t, err)
		assert.True(t, IsUnauthorized(err))
		assert.Equal(t, http.StatusForbidden, StatusCode(err))
	})

	t.Run("bad request", func(t *testing.T) {
		f := newFakeTreeherder(t)
		f.postStatus = http.StatusBadRequest
		c := newTestClient(t, f.server.URL, Credentials{ClientID: "client", Secret: "secret"})

		err := c.PostCollection(context.Background(), "demo-repo", NewJobCollection(&JobRecord{}))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		c := newTestClient(t, srv.URL, Credentials{ClientID: "client", Secret: "secret"})

		err := c.PostCollection(context.Background(), "demo-repo", NewJobCollection(&JobRecord{}))
		require.Error(t, err)
		assert.Equal(t, 0, StatusCode(err))
	})
}
