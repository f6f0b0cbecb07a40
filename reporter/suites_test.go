package reporter

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverest/allure"
	"serverest/stub"
	"serverest/toolkit"
)

func stubConfig(t *testing.T) toolkit.Config {
	t.Helper()
	srv := httptest.NewServer(stub.New("test-secret").Router())
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	return toolkit.Config{
		TestType:       toolkit.TestTypeAPI,
		BaseURL:        srv.URL,
		APIBaseURL:     srv.URL,
		UIBaseURL:      toolkit.DefaultUIBaseURL,
		RequestTimeout: 5 * time.Second,
		ResultsDir:     filepath.Join(dir, "allure-results"),
		ReportPath:     filepath.Join(dir, "report.json"),
	}
}

func TestAllSuitesPassAgainstStub(t *testing.T) {
	cfg := stubConfig(t)
	fx, err := toolkit.LoadFixtures("")
	require.NoError(t, err)

	s := NewSession(cfg, toolkit.NewClient(cfg), fx)
	rep := Run(context.Background(), s, AllSuites(), nil)

	for _, r := range rep.Results {
		if !r.Passed && !r.Skipped {
			t.Errorf("%s %s failed: %s %s (%s)", r.Suite, r.TestID, r.Failure, r.Why, r.Error)
		}
	}
	assert.Zero(t, rep.Summary.Failed)
	// Only the configured-account login has no credentials here.
	assert.Equal(t, 1, rep.Summary.Skipped)
	assert.Equal(t, rep.Summary.Total, rep.Summary.Passed+rep.Summary.Skipped)
}

func TestConfiguredLoginRunsWhenCredentialsAreSet(t *testing.T) {
	cfg := stubConfig(t)
	fx, err := toolkit.LoadFixtures("")
	require.NoError(t, err)
	client := toolkit.NewClient(cfg)

	_, status, err := client.CreateUser(context.Background(), toolkit.User{
		Nome: "Conta QA", Email: "conta.qa@qa.com.br", Password: "segredo", Administrador: "true",
	})
	require.NoError(t, err)
	require.Equal(t, 201, status)
	cfg.LoginEmail, cfg.LoginPassword = "conta.qa@qa.com.br", "segredo"

	suites, err := SelectSuites(AllSuites(), []string{"login"}, nil)
	require.NoError(t, err)
	rep := Run(context.Background(), NewSession(cfg, client, fx), suites, nil)
	assert.Equal(t, 5, rep.Summary.Passed)
	assert.Zero(t, rep.Summary.Skipped)
}

func TestSelectSuites(t *testing.T) {
	all := AllSuites()

	got, err := SelectSuites(all, nil, nil)
	require.NoError(t, err)
	assert.Len(t, got, len(all))

	got, err = SelectSuites(all, []string{"get", "delete"}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "get", got[0].Key)
	assert.Equal(t, "delete", got[1].Key)

	got, err = SelectSuites(all, nil, []string{tagSmoke})
	require.NoError(t, err)
	var ids []string
	for _, s := range got {
		for _, tc := range s.Cases {
			assert.True(t, tc.HasTag(tagSmoke))
			ids = append(ids, s.Key+"/"+tc.ID)
		}
	}
	assert.ElementsMatch(t, []string{"create/CT-013", "list/CT-014", "login/LG-004"}, ids)

	_, err = SelectSuites(all, []string{"update"}, nil)
	assert.ErrorContains(t, err, `unknown suite "update"`)
}

func TestSuiteCaseIDsAreUnique(t *testing.T) {
	for _, s := range AllSuites() {
		seen := map[string]bool{}
		for _, tc := range s.Cases {
			assert.False(t, seen[tc.ID], "duplicate case %s in %s", tc.ID, s.Key)
			seen[tc.ID] = true
			assert.NotEmpty(t, tc.Tags, "case %s in %s has no tags", tc.ID, s.Key)
		}
	}
}

func TestRunAPIWritesReportAndAllureResults(t *testing.T) {
	cfg := stubConfig(t)

	rep, err := RunAPI(context.Background(), cfg, Options{Suites: []string{"get"}})
	require.NoError(t, err)
	assert.True(t, rep.Persisted)
	assert.Zero(t, rep.Summary.Failed)

	b, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	var persisted toolkit.RunReport
	require.NoError(t, json.Unmarshal(b, &persisted))
	assert.Equal(t, rep.Summary, persisted.Summary)

	files, err := allure.Scan(cfg.ResultsDir)
	require.NoError(t, err)
	require.Len(t, files, rep.Summary.Total)
	for _, f := range files {
		assert.True(t, f.Result.Matches(allure.CategoryAPI), f.Path)
		assert.False(t, f.Result.Matches(allure.CategoryUI), f.Path)
		assert.True(t, strings.HasPrefix(f.Result.FullName, "serverest/api/3-get.usuario.byid#"), f.Result.FullName)
		assert.Equal(t, allure.StatusPassed, f.Result.Status)
		for _, a := range f.Result.Attachments {
			assert.FileExists(t, filepath.Join(cfg.ResultsDir, a.Source))
		}
	}
}

func TestRunAPIRejectsEmptySelection(t *testing.T) {
	cfg := stubConfig(t)
	_, err := RunAPI(context.Background(), cfg, Options{Suites: []string{"create"}, Tags: []string{"nonexistent"}})
	assert.ErrorContains(t, err, "no cases selected")
}

func TestAllureStatus(t *testing.T) {
	tests := []struct {
		res  toolkit.CaseResult
		want string
	}{
		{toolkit.CaseResult{Passed: true}, allure.StatusPassed},
		{toolkit.CaseResult{Skipped: true}, allure.StatusSkipped},
		{toolkit.CaseResult{Failure: FailureStatus}, allure.StatusFailed},
		{toolkit.CaseResult{Failure: FailureSchema}, allure.StatusFailed},
		{toolkit.CaseResult{Failure: FailureTransport}, allure.StatusBroken},
		{toolkit.CaseResult{Failure: FailureSetup}, allure.StatusBroken},
		{toolkit.CaseResult{Failure: FailureRequestBuild}, allure.StatusBroken},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, allureStatus(tt.res), "%+v", tt.res)
	}
}

func TestToAllureResultLabels(t *testing.T) {
	suite := getUserSuite()
	res := toolkit.CaseResult{
		TestID: "CT-001", Title: "[400] unknown _id", Method: "GET", Tags: []string{tagNegative},
		URL: "http://x/usuarios/ZZZ", Status: 400, ExpectedStatus: []int{400},
		Failure: FailureContent, Why: "mismatch", Error: "response content mismatch",
		Start: time.UnixMilli(1000), Stop: time.UnixMilli(1500),
	}
	r := toAllureResult(suite, res)

	assert.Equal(t, "CT-001 [400] unknown _id", r.Name)
	assert.Equal(t, allure.HistoryID(r.FullName), r.HistoryID)
	assert.Equal(t, allure.StatusFailed, r.Status)
	assert.Equal(t, int64(1000), r.Start)
	assert.Equal(t, int64(1500), r.Stop)
	require.NotNil(t, r.StatusDetails)
	assert.Equal(t, "mismatch", r.StatusDetails.Message)
	assert.Equal(t, []string{tagNegative}, r.LabelValues("tag"))
	sub, _ := r.LabelValue("subSuite")
	assert.Equal(t, suite.Name, sub)
	layer, _ := r.LabelValue("layer")
	assert.Equal(t, "api", layer)
	assert.Contains(t, r.Parameters, allure.Parameter{Name: "expected status", Value: "400"})
}

func TestSuiteCategoryFollowsSpecPath(t *testing.T) {
	for _, s := range AllSuites() {
		assert.Equal(t, allure.CategoryAPI, s.Category(), s.Key)
	}
	assert.Equal(t, allure.CategoryUI, Suite{Spec: "ui/home"}.Category())
	assert.Equal(t, allure.CategoryUI, Suite{Spec: "home"}.Category())

	ui := toAllureResult(Suite{Name: "home", Spec: "ui/home"}, toolkit.CaseResult{TestID: "UI-1"})
	assert.True(t, ui.Matches(allure.CategoryUI))
	assert.False(t, ui.Matches(allure.CategoryAPI))
}
