package issues

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/types"
)

func TestJiraTracker_PostsComment(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotComment jiraComment
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotComment))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	props := properties.New(map[string]string{
		properties.KeyJiraURL:   srv.URL,
		properties.KeyJiraIssue: "QA-42",
		properties.KeyJiraUser:  "bot",
		properties.KeyJiraToken: "token",
	})
	tr := NewJiraTracker(func() *properties.Properties { return props }, log.NewLogger(log.DiscardHandler()), "run-1")

	err := tr.SyncExecutionStatus(context.Background(), types.Tally{Passed: 1, Failed: 1, Skipped: 1})
	require.NoError(t, err)
	assert.Equal(t, "/rest/api/2/issue/QA-42/comment", gotPath)
	assert.Equal(t, "bot", gotUser)
	assert.Equal(t, "token", gotPass)
	assert.Contains(t, gotComment.Body, "run-1")
	assert.Contains(t, gotComment.Body, "FAILED")
	assert.Contains(t, gotComment.Body, "1 passed, 1 failed, 1 skipped")
}

func TestJiraTracker_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "issue does not exist", http.StatusNotFound)
	}))
	defer srv.Close()

	props := properties.New(map[string]string{
		properties.KeyJiraURL:   srv.URL,
		properties.KeyJiraIssue: "QA-404",
	})
	tr := NewJiraTracker(func() *properties.Properties { return props }, log.NewLogger(log.DiscardHandler()), "run-1")
	err := tr.SyncExecutionStatus(context.Background(), types.Tally{Passed: 1})
	require.ErrorContains(t, err, "404")
	require.ErrorContains(t, err, "issue does not exist")
}

func TestJiraTracker_NotConfigured(t *testing.T) {
	tr := NewJiraTracker(func() *properties.Properties { return properties.New(nil) }, log.NewLogger(log.DiscardHandler()), "run-1")
	require.NoError(t, tr.SyncExecutionStatus(context.Background(), types.Tally{}))
}
