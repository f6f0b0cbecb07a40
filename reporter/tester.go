package reporter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"serverest/allure"
	"serverest/toolkit"
)

// ErrSkip marks a case whose preconditions are missing, e.g. a fixture user
// that could not be seeded.
var ErrSkip = errors.New("skipped")

func skipf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSkip, fmt.Sprintf(format, args...))
}

// Suite groups the cases of one endpoint. Method and Endpoint are the
// defaults for every case request. Spec is the suite's path under the
// project; its directory decides the report category.
type Suite struct {
	Key      string
	Name     string
	Spec     string
	Method   string
	Endpoint string
	Seed     []string
	Cases    []Case
}

// Case is one scenario. Static cases fill Request and Expect; cases that
// depend on seeded or freshly created data provide Build instead.
type Case struct {
	ID      string
	Title   string
	Tags    []string
	Request toolkit.Request
	Expect  Expectation
	Build   func(ctx context.Context, s *Session) (toolkit.Request, Expectation, error)
}

// Expectation is checked in order: status, content, then checks.
type Expectation struct {
	Status  []int
	Content any
	Checks  []Check
}

// Category maps the suite's spec path to the report layer it belongs to.
func (s Suite) Category() allure.Category {
	c, err := allure.ParseCategory(toolkit.DetectTestType(s.Spec))
	if err != nil {
		return allure.CategoryUI
	}
	return c
}

func (c Case) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}

// caseHook receives every finished case; the runner uses it to write Allure results.
type caseHook func(suite Suite, tc Case, res toolkit.CaseResult)

// Run executes suites in order and summarises the outcome.
func Run(ctx context.Context, s *Session, suites []Suite, hook caseHook) toolkit.RunReport {
	rep := toolkit.RunReport{BaseURL: s.Client.BaseURL, StartedAt: time.Now()}
	log.Infof("tester.run: start base_url=%s suites=%d", s.Client.BaseURL, len(suites))

	for _, suite := range suites {
		log.Infof("tester.run: suite name=%q method=%s endpoint=%s cases=%d", suite.Name, suite.Method, suite.Endpoint, len(suite.Cases))
		if len(suite.Seed) > 0 {
			if err := s.Seed(ctx, suite.Seed...); err != nil {
				// Cases that need a missing user skip themselves.
				log.Warnf("tester.run: seeding incomplete suite=%q error=%v", suite.Name, err)
			}
		}
		for _, tc := range suite.Cases {
			if ctx.Err() != nil {
				log.Warnf("tester.run: cancelled error=%v", ctx.Err())
				return finish(rep)
			}
			rep.Summary.Total++
			log.Debugf("tester.run: case start suite=%q test_id=%s", suite.Name, tc.ID)
			res := runOne(ctx, s, suite, tc)
			rep.Results = append(rep.Results, res)
			switch {
			case res.Skipped:
				rep.Summary.Skipped++
			case res.Passed:
				rep.Summary.Passed++
			default:
				rep.Summary.Failed++
			}
			if hook != nil {
				hook(suite, tc, res)
			}
			log.Infof("tester.run: case done suite=%q test_id=%s passed=%t skipped=%t status=%d failure=%s", suite.Name, tc.ID, res.Passed, res.Skipped, res.Status, res.Failure)
		}
	}
	return finish(rep)
}

func finish(rep toolkit.RunReport) toolkit.RunReport {
	log.Infof("tester.run: completed total=%d passed=%d failed=%d skipped=%d", rep.Summary.Total, rep.Summary.Passed, rep.Summary.Failed, rep.Summary.Skipped)
	return rep
}

func runOne(ctx context.Context, s *Session, suite Suite, tc Case) toolkit.CaseResult {
	cr := toolkit.CaseResult{
		Suite:    suite.Name,
		Spec:     suite.Spec,
		Endpoint: suite.Endpoint,
		Method:   suite.Method,
		TestID:   tc.ID,
		Title:    tc.Title,
		Tags:     tc.Tags,
		Start:    time.Now(),
	}

	req, exp := tc.Request, tc.Expect
	if tc.Build != nil {
		var err error
		req, exp, err = tc.Build(ctx, s)
		if errors.Is(err, ErrSkip) {
			log.Infof("tester.run_one: skipped suite=%q test_id=%s reason=%v", suite.Name, tc.ID, err)
			cr.Skipped = true
			cr.Why = err.Error()
			cr.Stop = time.Now()
			return cr
		}
		if err != nil {
			log.Warnf("tester.run_one: build failed suite=%q test_id=%s error=%v", suite.Name, tc.ID, err)
			cr.Failure = FailureSetup
			cr.Why = "Could not prepare the data this case depends on."
			cr.Error = err.Error()
			cr.Stop = time.Now()
			return cr
		}
	}
	if req.Method == "" {
		req.Method = suite.Method
	}
	if req.Path == "" {
		req.Path = suite.Endpoint
	}
	cr.Method = req.Method
	cr.ExpectedStatus = append([]int(nil), exp.Status...)
	cr.ExpectedContent = exp.Content

	fullURL, err := toolkit.BuildURL(s.Client.BaseURL, req.Path, req.PathParams, req.Query)
	if err != nil {
		log.Warnf("tester.run_one: build url failed suite=%q test_id=%s error=%v", suite.Name, tc.ID, err)
		cr.Failure = FailureRequestBuild
		cr.Why = "Failed to build request URL for this test case."
		cr.Error = "buildURL: " + err.Error()
		cr.Stop = time.Now()
		return cr
	}
	cr.URL = fullURL

	raw, err := s.Client.Do(ctx, req)
	cr.LatencyMS = raw.LatencyMS
	if err != nil {
		log.Warnf("tester.run_one: request failed suite=%q test_id=%s error=%v", suite.Name, tc.ID, err)
		cr.Failure = FailureTransport
		cr.Why = "Request did not complete successfully."
		cr.Error = err.Error()
		cr.Stop = time.Now()
		return cr
	}
	cr.Status = raw.Status
	cr.Body = string(raw.Body)
	res := newResponse(raw, s.Schemas)

	// ASSERT: status
	if !statusMatches(cr.Status, exp.Status) {
		log.Infof("tester.run_one: status mismatch suite=%q test_id=%s got=%d expected=%v", suite.Name, tc.ID, cr.Status, exp.Status)
		cr.Failure = FailureStatus
		cr.Why = buildStatusMismatchReason(exp.Status, cr.Status, cr.Body)
		cr.Error = fmt.Sprintf("status mismatch (got=%d expected=%v)", cr.Status, exp.Status)
		cr.Stop = time.Now()
		return cr
	}

	// ASSERT: content
	if exp.Content != nil {
		actual, err := res.JSON()
		if err != nil {
			cr.Failure = FailureResponseParse
			cr.Why = "Expected structured content, but response body is not valid JSON."
			cr.Error = "response content is not valid JSON"
			cr.Stop = time.Now()
			return cr
		}
		expected := normalize(exp.Content)
		if !contentMatches(actual, expected) {
			log.Infof("tester.run_one: content mismatch suite=%q test_id=%s", suite.Name, tc.ID)
			cr.Failure = FailureContent
			cr.Why = buildContentMismatchReason(expected, actual)
			cr.Error = "response content mismatch"
			cr.Stop = time.Now()
			return cr
		}
	}

	// ASSERT: checks
	for _, check := range exp.Checks {
		if err := check(res); err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				cr.Failure = ae.Kind
				cr.Why = ae.Why
			} else {
				cr.Failure = FailureSetup
				cr.Why = "Check could not be evaluated."
			}
			cr.Error = err.Error()
			log.Infof("tester.run_one: check failed suite=%q test_id=%s failure=%s why=%s", suite.Name, tc.ID, cr.Failure, cr.Why)
			cr.Stop = time.Now()
			return cr
		}
	}

	cr.Passed = true
	cr.Stop = time.Now()
	return cr
}

func statusMatches(got int, allowed []int) bool {
	if len(allowed) == 0 {
		return got >= 200 && got <= 299
	}
	return slices.Contains(allowed, got)
}

// contentMatches treats objects as subsets, arrays as prefixes and the string
// "..." as any non-empty value.
func contentMatches(actual any, expected any) bool {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		for k, v := range exp {
			a, ok := act[k]
			if !ok {
				return false
			}
			if !contentMatches(a, v) {
				return false
			}
		}
		return true
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return false
		}
		if len(exp) > len(act) {
			return false
		}
		for i := range exp {
			if !contentMatches(act[i], exp[i]) {
				return false
			}
		}
		return true
	case string:
		if exp == "..." {
			if s, ok := actual.(string); ok {
				return strings.TrimSpace(s) != ""
			}
			return actual != nil
		}
		s, ok := actual.(string)
		return ok && s == exp
	case float64:
		a, ok := actual.(float64)
		return ok && a == exp
	default:
		return actual == expected
	}
}

func buildStatusMismatchReason(expected []int, got int, rawBody string) string {
	base := fmt.Sprintf("Expected status in %v but received %d.", expected, got)
	if hint := genericErrorHint(rawBody); hint != "" {
		return base + " Response hint: " + hint
	}
	return base
}

func buildContentMismatchReason(expected any, actual any) string {
	if path, exp, act, ok := firstContentDifference("$", expected, actual); ok {
		return fmt.Sprintf("Response content mismatch at %s (expected=%s got=%s).", path, exp, act)
	}
	return "Response content did not match expected structure."
}

func firstContentDifference(path string, expected any, actual any) (string, string, string, bool) {
	switch exp := expected.(type) {
	case map[string]any:
		act, ok := actual.(map[string]any)
		if !ok {
			return path, compactForReport(expected), compactForReport(actual), true
		}
		for k, v := range exp {
			a, exists := act[k]
			if !exists {
				return path + "." + k, compactForReport(v), "<missing>", true
			}
			if p, e, av, diff := firstContentDifference(path+"."+k, v, a); diff {
				return p, e, av, true
			}
		}
		return "", "", "", false
	case []any:
		act, ok := actual.([]any)
		if !ok {
			return path, compactForReport(expected), compactForReport(actual), true
		}
		if len(act) < len(exp) {
			return path, fmt.Sprintf("len>=%d", len(exp)), fmt.Sprintf("len=%d", len(act)), true
		}
		for i := range exp {
			if p, e, av, diff := firstContentDifference(fmt.Sprintf("%s[%d]", path, i), exp[i], act[i]); diff {
				return p, e, av, true
			}
		}
		return "", "", "", false
	default:
		if !contentMatches(actual, expected) {
			return path, compactForReport(expected), compactForReport(actual), true
		}
		return "", "", "", false
	}
}

func genericErrorHint(rawBody string) string {
	if strings.TrimSpace(rawBody) == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(rawBody), &v); err != nil {
		return ""
	}
	return extractErrorHint(v)
}

// extractErrorHint picks the most telling message from an error body.
// ServeRest reports validation errors as {"<field>": "<message>"}, so any
// string value is accepted after the usual keys.
func extractErrorHint(v any) string {
	switch obj := v.(type) {
	case map[string]any:
		priorityKeys := []string{"detail", "error", "errors", "message", "msg", "reason", "title"}
		for _, key := range priorityKeys {
			if val, ok := obj[key]; ok {
				return compactForReport(val)
			}
		}
		if len(obj) > 0 {
			return compactForReport(obj)
		}
	case []any:
		for _, item := range obj {
			if hint := extractErrorHint(item); hint != "" {
				return hint
			}
		}
	}
	return ""
}

func compactForReport(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
