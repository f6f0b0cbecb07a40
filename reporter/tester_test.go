package reporter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverest/toolkit"
)

func cannedSession(t *testing.T, status int, body string) *Session {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	cfg := toolkit.Config{BaseURL: srv.URL, RequestTimeout: 2 * time.Second}
	return NewSession(cfg, toolkit.NewClient(cfg), toolkit.Fixtures{})
}

var cannedSuite = Suite{Key: "t", Name: "canned", Spec: "api/t", Method: http.MethodGet, Endpoint: "/usuarios/{id}"}

func TestRunOneOutcomes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		tc      Case
		passed  bool
		skipped bool
		failure string
	}{
		{
			name: "pass", status: 400, body: `{"id":"bad"}`,
			tc: Case{ID: "A", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}},
				Expect: Expectation{Status: []int{400}, Content: map[string]any{"id": "bad"}}},
			passed: true,
		},
		{
			name: "status mismatch", status: 200, body: `{}`,
			tc:      Case{ID: "B", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}}, Expect: Expectation{Status: []int{400}}},
			failure: FailureStatus,
		},
		{
			name: "content mismatch", status: 400, body: `{"id":"other"}`,
			tc: Case{ID: "C", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}},
				Expect: Expectation{Status: []int{400}, Content: map[string]any{"id": "bad"}}},
			failure: FailureContent,
		},
		{
			name: "body not json", status: 400, body: `oops`,
			tc: Case{ID: "D", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}},
				Expect: Expectation{Status: []int{400}, Content: map[string]any{"id": "bad"}}},
			failure: FailureResponseParse,
		},
		{
			name: "unresolved placeholder", status: 200, body: `{}`,
			tc:      Case{ID: "E"},
			failure: FailureRequestBuild,
		},
		{
			name: "check failure kind", status: 200, body: `{"a":1}`,
			tc: Case{ID: "F", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}},
				Expect: Expectation{Status: []int{200}, Checks: []Check{Field("a", 2)}}},
			failure: FailureContent,
		},
		{
			name: "build skip", status: 200, body: `{}`,
			tc: Case{ID: "G", Build: func(context.Context, *Session) (toolkit.Request, Expectation, error) {
				return toolkit.Request{}, Expectation{}, skipf("no user")
			}},
			skipped: true,
		},
		{
			name: "build error", status: 200, body: `{}`,
			tc: Case{ID: "H", Build: func(context.Context, *Session) (toolkit.Request, Expectation, error) {
				return toolkit.Request{}, Expectation{}, errors.New("boom")
			}},
			failure: FailureSetup,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := cannedSession(t, tt.status, tt.body)
			res := runOne(context.Background(), s, cannedSuite, tt.tc)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.skipped, res.Skipped)
			assert.Equal(t, tt.failure, res.Failure)
			assert.False(t, res.Stop.Before(res.Start))
			if tt.failure != "" {
				assert.NotEmpty(t, res.Why)
			}
		})
	}
}

func TestRunOneTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	cfg := toolkit.Config{BaseURL: url, RequestTimeout: time.Second}
	s := NewSession(cfg, toolkit.NewClient(cfg), toolkit.Fixtures{})
	res := runOne(context.Background(), s, cannedSuite, Case{ID: "T", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}}})
	assert.Equal(t, FailureTransport, res.Failure)
}

func TestRunSummaryAndHook(t *testing.T) {
	s := cannedSession(t, 200, `{}`)
	suite := cannedSuite
	suite.Cases = []Case{
		{ID: "1", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}}},
		{ID: "2", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}}, Expect: Expectation{Status: []int{201}}},
		{ID: "3", Build: func(context.Context, *Session) (toolkit.Request, Expectation, error) {
			return toolkit.Request{}, Expectation{}, skipf("nope")
		}},
	}

	var seen []string
	rep := Run(context.Background(), s, []Suite{suite}, func(_ Suite, tc Case, _ toolkit.CaseResult) {
		seen = append(seen, tc.ID)
	})
	assert.Equal(t, toolkit.RunSummary{Total: 3, Passed: 1, Failed: 1, Skipped: 1}, rep.Summary)
	assert.Equal(t, []string{"1", "2", "3"}, seen)
	require.Len(t, rep.Results, 3)
}

func TestRunStopsWhenCancelled(t *testing.T) {
	s := cannedSession(t, 200, `{}`)
	suite := cannedSuite
	suite.Cases = []Case{{ID: "1", Request: toolkit.Request{PathParams: map[string]string{"id": "x"}}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := Run(ctx, s, []Suite{suite}, nil)
	assert.Zero(t, rep.Summary.Total)
}

func TestContentMatches(t *testing.T) {
	actual := map[string]any{"message": "ok", "_id": "abc", "list": []any{1.0, 2.0}}

	assert.True(t, contentMatches(actual, map[string]any{"message": "ok"}))
	assert.True(t, contentMatches(actual, map[string]any{"_id": "..."}))
	assert.True(t, contentMatches(actual, map[string]any{"list": []any{1.0}}))
	assert.False(t, contentMatches(actual, map[string]any{"list": []any{2.0}}))
	assert.False(t, contentMatches(actual, map[string]any{"missing": "..."}))
	assert.False(t, contentMatches(map[string]any{"_id": "  "}, map[string]any{"_id": "..."}))
}

func TestStatusMatches(t *testing.T) {
	assert.True(t, statusMatches(204, nil))
	assert.False(t, statusMatches(400, nil))
	assert.True(t, statusMatches(405, []int{400, 405}))
	assert.False(t, statusMatches(200, []int{400, 405}))
}

func TestErrorHints(t *testing.T) {
	assert.Equal(t, `"Usuário não encontrado"`, genericErrorHint(`{"message":"Usuário não encontrado"}`))
	assert.Equal(t, `{"email":"email é obrigatório"}`, genericErrorHint(`{"email":"email é obrigatório"}`))
	assert.Empty(t, genericErrorHint(`<html>`))
	assert.Empty(t, genericErrorHint(""))

	reason := buildStatusMismatchReason([]int{200}, 400, `{"message":"x"}`)
	assert.Equal(t, `Expected status in [200] but received 400. Response hint: "x"`, reason)
}

func TestFirstContentDifference(t *testing.T) {
	path, exp, act, diff := firstContentDifference("$",
		map[string]any{"usuarios": []any{map[string]any{"nome": "A"}}},
		map[string]any{"usuarios": []any{map[string]any{"nome": "B"}}})
	require.True(t, diff)
	assert.Equal(t, "$.usuarios[0].nome", path)
	assert.Equal(t, `"A"`, exp)
	assert.Equal(t, `"B"`, act)

	_, _, _, diff = firstContentDifference("$", map[string]any{"a": 1.0}, map[string]any{"a": 1.0, "b": 2.0})
	assert.False(t, diff)
}
