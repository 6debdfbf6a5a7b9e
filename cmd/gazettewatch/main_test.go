package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
	"github.com/JakeFAU/gazette-watch/internal/orchestrator"
)

const gazettePage = `<html><body>
<script id="params" type="application/json">
{"jsonArray":[{"pubName":"DO1","urlTitle":"despacho-1","numberPage":"12","title":"DESPACHO","content":"Processo 19515.720728/2017-36 arquivado"}]}
</script></body></html>`

func writeConfig(t *testing.T, gazetteURL, list string, extra ...string) (string, string) {
	t.Helper()
	dir := t.TempDir()

	listPath := filepath.Join(dir, "list.csv")
	require.NoError(t, os.WriteFile(listPath, []byte(list), 0o600))

	lockPath := filepath.Join(dir, "dou_lock.txt")
	cfg := fmt.Sprintf(`
watchlist:
  path: %s
crawl:
  base_url: %s/leiturajornal
  max_attempts: 1
  sections: [do1]
guard:
  provider: file
  path: %s
ledger:
  provider: memory
`, listPath, gazetteURL, lockPath) + strings.Join(extra, "\n")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, lockPath
}

func gazetteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/leiturajornal") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(gazettePage))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExecuteRunLifecycle(t *testing.T) {
	srv := gazetteServer(t)
	cfgPath, lockPath := writeConfig(t, srv.URL, "NÚMERO DO PROCESSO\n19515.720728/2017-36\n")

	require.Equal(t, orchestrator.ExitMatchesFound, Execute([]string{"run", "--config", cfgPath}))
	_, err := os.Stat(lockPath)
	require.NoError(t, err)

	require.Equal(t, orchestrator.ExitSkipped, Execute([]string{"run", "--config", cfgPath}))

	require.Equal(t, 0, Execute([]string{"lock", "status", "--config", cfgPath}))
	require.Equal(t, 0, Execute([]string{"lock", "reset", "--config", cfgPath}))
	_, err = os.Stat(lockPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.Equal(t, orchestrator.ExitMatchesFound, Execute([]string{"run", "--config", cfgPath}))
}

func TestExecuteRunWithoutMatches(t *testing.T) {
	srv := gazetteServer(t)
	cfgPath, _ := writeConfig(t, srv.URL, "NÚMERO DO PROCESSO\n00000.000000/0000-00\n")

	require.Equal(t, orchestrator.ExitNoMatches, Execute([]string{"run", "--config", cfgPath}))
}

func TestExecuteRunMissingColumn(t *testing.T) {
	srv := gazetteServer(t)
	cfgPath, lockPath := writeConfig(t, srv.URL, "PROCESSO\n19515.720728/2017-36\n")

	require.Equal(t, orchestrator.ExitFailed, Execute([]string{"run", "--config", cfgPath}))
	_, err := os.Stat(lockPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestExecuteRunCrawlFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	cfgPath, _ := writeConfig(t, srv.URL, "NÚMERO DO PROCESSO\n19515.720728/2017-36\n")

	require.Equal(t, orchestrator.ExitFailed, Execute([]string{"run", "--config", cfgPath}))
}

func TestExecuteMigrateMemory(t *testing.T) {
	srv := gazetteServer(t)
	cfgPath, _ := writeConfig(t, srv.URL, "NÚMERO DO PROCESSO\n1\n")

	require.Equal(t, 0, Execute([]string{"migrate", "--config", cfgPath}))
}

func TestExecuteBadConfig(t *testing.T) {
	require.Equal(t, orchestrator.ExitFailed, Execute([]string{"run", "--config", filepath.Join(t.TempDir(), "missing.yaml")}))
}

func TestExecuteUnknownCommand(t *testing.T) {
	require.Equal(t, orchestrator.ExitFailed, Execute([]string{"frobnicate"}))
}

func TestReportOutcomeWritesLedgerFailure(t *testing.T) {
	var stderr bytes.Buffer
	outcome := orchestrator.Outcome{
		Kind: orchestrator.Failed,
		Err:  &gazette.PersistenceError{Op: "insert run", Err: errors.New("connection reset")},
	}

	require.Equal(t, orchestrator.ExitFailed, reportOutcome(outcome, &stderr))
	require.True(t, strings.HasPrefix(stderr.String(), "ledger write failed: "), stderr.String())
	require.Contains(t, stderr.String(), "connection reset")
}

func TestReportOutcomeQuietOnOtherFailures(t *testing.T) {
	var stderr bytes.Buffer
	outcome := orchestrator.Outcome{
		Kind: orchestrator.Failed,
		Err:  &gazette.CollaboratorError{Collaborator: "crawl", Err: errors.New("status 503")},
	}

	require.Equal(t, orchestrator.ExitFailed, reportOutcome(outcome, &stderr))
	require.Empty(t, stderr.String())

	require.Equal(t, orchestrator.ExitMatchesFound, reportOutcome(orchestrator.Outcome{Kind: orchestrator.MatchesFound}, &stderr))
	require.Empty(t, stderr.String())
}

func TestExecuteRunPushesMetrics(t *testing.T) {
	pushed := make(chan string, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/metrics/job/gazette_watch", r.URL.Path)
		select {
		case pushed <- string(body):
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(gateway.Close)

	srv := gazetteServer(t)
	cfgPath, _ := writeConfig(t, srv.URL, "NÚMERO DO PROCESSO\n19515.720728/2017-36\n",
		fmt.Sprintf("metrics:\n  pushgateway_url: %s\n", gateway.URL))

	require.Equal(t, orchestrator.ExitMatchesFound, Execute([]string{"run", "--config", cfgPath}))

	select {
	case body := <-pushed:
		require.Contains(t, body, "gazette_runs_total")
		require.Contains(t, body, "gazette_section_fetches_total")
	default:
		t.Fatal("run did not push its metrics")
	}
}
