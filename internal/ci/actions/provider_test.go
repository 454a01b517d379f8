package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/ci"
	"github.com/fyrsmithlabs/launchpad/internal/validation"
	"github.com/fyrsmithlabs/launchpad/internal/vcs"
	"github.com/fyrsmithlabs/launchpad/internal/vcs/githubhost"
)

type fakeActions struct {
	dispatched atomic.Int32
	listCalls  atomic.Int32
	// runs appear after this many listings
	appearAfter int32
	status      string
	conclusion  string
	checkRuns   []map[string]any
}

func (f *fakeActions) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(v))
	}

	mux.HandleFunc("POST /repos/platform/payments/actions/workflows/launchpad-validate.yml/dispatches", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "launchpad/20260101-000000", body["ref"])
		f.dispatched.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /repos/platform/payments/actions/workflows/launchpad-validate.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "workflow_dispatch", r.URL.Query().Get("event"))
		runs := []map[string]any{}
		if f.listCalls.Add(1) > f.appearAfter {
			runs = append(runs, map[string]any{
				"id":         42,
				"status":     "queued",
				"created_at": time.Now().UTC().Format(time.RFC3339),
			})
		}
		write(w, map[string]any{"total_count": len(runs), "workflow_runs": runs})
	})
	mux.HandleFunc("GET /repos/platform/payments/actions/runs/42", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{
			"id":             42,
			"status":         f.status,
			"conclusion":     f.conclusion,
			"check_suite_id": 7,
		})
	})
	mux.HandleFunc("GET /repos/platform/payments/check-suites/7/check-runs", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]any{"total_count": len(f.checkRuns), "check_runs": f.checkRuns})
	})
	return mux
}

func newTestProvider(t *testing.T, f *fakeActions) *Provider {
	t.Helper()
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	require.NoError(t, githubhost.SetBaseURL(client, server.URL))
	host := githubhost.New(client, githubhost.Options{User: "bot"}, nil)
	return New(host, Options{DiscoveryWait: time.Millisecond}, nil)
}

func checkRun(name, conclusion string) map[string]any {
	return map[string]any{"name": name, "status": "completed", "conclusion": conclusion}
}

func request() ci.Request {
	return ci.Request{
		Repository: vcs.Repository{Owner: "platform", Name: "payments", DefaultBranch: "main"},
		Ref:        "launchpad/20260101-000000",
	}
}

func TestProvider_Trigger(t *testing.T) {
	f := &fakeActions{appearAfter: 2}
	p := newTestProvider(t, f)
	assert.Equal(t, ci.KindGitHubActions, p.Kind())

	id, err := p.Trigger(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, ci.RunID("platform/payments/42"), id)
	assert.Equal(t, int32(1), f.dispatched.Load())
	assert.Equal(t, int32(3), f.listCalls.Load())
}

func TestProvider_TriggerRunNeverAppears(t *testing.T) {
	f := &fakeActions{appearAfter: 100}
	p := newTestProvider(t, f)
	p.opts.DiscoveryAttempts = 3

	_, err := p.Trigger(context.Background(), request())
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.Equal(t, int32(3), f.listCalls.Load())
}

func TestProvider_Status(t *testing.T) {
	allPass := []map[string]any{
		checkRun("syntax", "success"),
		checkRun("parameters", "success"),
		checkRun("steps", "success"),
		checkRun("security", "success"),
		checkRun("quality", "success"),
	}

	tests := []struct {
		name       string
		status     string
		conclusion string
		checkRuns  []map[string]any
		want       ci.Status
		verdict    validation.Verdict
	}{
		{"queued", "queued", "", nil, ci.StatusQueued, ""},
		{"running", "in_progress", "", nil, ci.StatusRunning, ""},
		{"passed", "completed", "success", allPass, ci.StatusCompleted, validation.VerdictPassed},
		{"warning", "completed", "success", append(allPass[:4:4], checkRun("quality", "neutral")), ci.StatusCompleted, validation.VerdictWarning},
		{"failed check", "completed", "failure", append(allPass[1:5:5], checkRun("syntax", "failure")), ci.StatusCompleted, validation.VerdictFailed},
		{"security failure", "completed", "failure", append(allPass[:3:3], checkRun("security", "failure"), checkRun("quality", "success")), ci.StatusCompleted, validation.VerdictFailed},
		{"cancelled", "completed", "cancelled", nil, ci.StatusCancelled, ""},
		{"timed out", "completed", "timed_out", nil, ci.StatusFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeActions{status: tt.status, conclusion: tt.conclusion, checkRuns: tt.checkRuns}
			st, err := newTestProvider(t, f).Status(context.Background(), "platform/payments/42")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Status)
			if tt.verdict == "" {
				assert.Nil(t, st.Report)
				return
			}
			require.NotNil(t, st.Report)
			assert.Equal(t, tt.verdict, st.Report.Verdict)
			assert.Len(t, st.Report.Checks, 3)
		})
	}
}

func TestParseRunID(t *testing.T) {
	owner, repo, id, err := parseRunID("platform/payments/42")
	require.NoError(t, err)
	assert.Equal(t, "platform", owner)
	assert.Equal(t, "payments", repo)
	assert.Equal(t, int64(42), id)

	for _, bad := range []ci.RunID{"", "platform/payments", "platform/payments/x"} {
		_, _, _, err := parseRunID(bad)
		assert.Error(t, err, string(bad))
	}
}

func TestWorkflowGenerator(t *testing.T) {
	files, err := WorkflowGenerator("").Generate(artifact.Specification{Name: "payments"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, ".github/workflows/launchpad-validate.yml", files[0].Path)

	var wf struct {
		On   map[string]any `yaml:"on"`
		Jobs map[string]struct {
			Steps []map[string]any `yaml:"steps"`
		} `yaml:"jobs"`
	}
	require.NoError(t, yaml.Unmarshal(files[0].Content, &wf))
	assert.Contains(t, wf.On, "workflow_dispatch")
	assert.Len(t, wf.Jobs, 5)
	last := wf.Jobs["security"].Steps[len(wf.Jobs["security"].Steps)-1]
	assert.True(t, strings.HasSuffix(last["run"].(string), "--check security ."))
}
