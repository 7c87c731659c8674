package gameserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"cc-wager-escrow-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc, err := NewService(models.GameServerConfig{BaseURL: server.URL + "/", Timeout: 2 * time.Second}, StaticToken("secret"))
	require.NoError(t, err)
	return svc
}

func TestIssueChallenge(t *testing.T) {
	var gotPath, gotAuth string
	var gotForm url.Values
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotForm = r.PostForm
		w.WriteHeader(http.StatusOK)
	})

	err := svc.IssueChallenge(context.Background(), "acct-a", "Bob", models.Terms{TimeSeconds: 300, IncrementSeconds: 3, Rated: true})
	require.NoError(t, err)
	assert.Equal(t, "/api/challenge/Bob", gotPath)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "300", gotForm.Get("clock.limit"))
	assert.Equal(t, "3", gotForm.Get("clock.increment"))
	assert.Equal(t, "true", gotForm.Get("rated"))
}

func TestIssueChallenge_Rejected(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"user does not accept challenges"}`)
	})

	err := svc.IssueChallenge(context.Background(), "acct-a", "Bob", models.Terms{})
	require.ErrorContains(t, err, "does not accept challenges")
}

func TestIssueChallenge_NoToken(t *testing.T) {
	called := false
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})
	svc.tokens = StaticToken("")

	require.Error(t, svc.IssueChallenge(context.Background(), "acct-a", "Bob", models.Terms{}))
	assert.False(t, called)
}

func TestFetchOutcome(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/game/abc123" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, `{
			"id": "abc123",
			"status": "mate",
			"winner": "black",
			"players": {
				"white": {"user": {"name": "Alice"}},
				"black": {"user": {"name": "Bob"}}
			}
		}`)
	})

	summary, err := svc.FetchOutcome(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, "abc123", summary.GameId)
	assert.Equal(t, "Alice", summary.WhiteName)
	assert.Equal(t, "Bob", summary.BlackName)
	assert.Equal(t, models.Black, summary.Winner)
	assert.Equal(t, models.ResultWin, summary.ResultFor(summary.ColorOf("bob")))
	assert.Equal(t, models.ResultLoss, summary.ResultFor(summary.ColorOf("Alice")))
}

func TestFetchOutcome_Errors(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/game/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "{broken")
	})

	_, err := svc.FetchOutcome(context.Background(), "missing")
	require.ErrorContains(t, err, "status 404")

	_, err = svc.FetchOutcome(context.Background(), "broken")
	require.ErrorContains(t, err, "unable to decode")
}

func TestNewService_InvalidURL(t *testing.T) {
	_, err := NewService(models.GameServerConfig{BaseURL: "not a url"}, StaticToken("x"))
	require.Error(t, err)
}
