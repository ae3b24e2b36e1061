// Package issues reports the execution status of a session to an issue tracker.
package issues

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-session/properties"
	"github.com/ethereum-optimism/infra/op-session/types"
)

// JiraTracker comments the session tallies on a configured Jira issue. The
// connection settings are read from properties on every sync; without a
// URL and issue key the sync is skipped.
type JiraTracker struct {
	props  func() *properties.Properties
	log    log.Logger
	client *http.Client
	runID  string
}

func NewJiraTracker(props func() *properties.Properties, logger log.Logger, runID string) *JiraTracker {
	return &JiraTracker{
		props:  props,
		log:    logger,
		client: &http.Client{Timeout: 30 * time.Second},
		runID:  runID,
	}
}

type jiraComment struct {
	Body string `json:"body"`
}

// SyncExecutionStatus posts the tallies as a comment
func (j *JiraTracker) SyncExecutionStatus(ctx context.Context, tally types.Tally) error {
	p := j.props()
	base := p.String(properties.KeyJiraURL, "")
	issue := p.String(properties.KeyJiraIssue, "")
	if base == "" || issue == "" {
		j.log.Debug("Issue tracker not configured, skipping sync")
		return nil
	}

	endpoint, err := url.JoinPath(base, "rest", "api", "2", "issue", issue, "comment")
	if err != nil {
		return fmt.Errorf("invalid jira url %q: %w", base, err)
	}
	body, err := json.Marshal(jiraComment{Body: formatComment(j.runID, tally)})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if user := p.String(properties.KeyJiraUser, ""); user != "" {
		req.SetBasicAuth(user, p.String(properties.KeyJiraToken, ""))
	} else if token := p.String(properties.KeyJiraToken, ""); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("jira request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("jira returned %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	j.log.Info("Synced execution status", "issue", issue, "status", tally.Status())
	return nil
}

func formatComment(runID string, tally types.Tally) string {
	return fmt.Sprintf("Test session %s finished with status %s: %d passed, %d failed, %d skipped (%.1f%% pass rate)",
		runID, tally.Status(), tally.Passed, tally.Failed, tally.Skipped, tally.PassRate())
}
