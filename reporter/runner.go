package reporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	log "github.com/sirupsen/logrus"

	"serverest/allure"
	"serverest/toolkit"
)

// Options narrows and redirects a run. Empty fields fall back to the config.
type Options struct {
	Suites     []string
	Tags       []string
	ResultsDir string
	ReportPath string
}

// AllSuites returns every suite in execution order.
func AllSuites() []Suite {
	return []Suite{
		createUserSuite(),
		listUsersSuite(),
		getUserSuite(),
		deleteUserSuite(),
		loginSuite(),
	}
}

// SelectSuites keeps the suites named in keys (all when empty) and, when tags
// are given, only the cases carrying at least one of them. Suites left
// without cases are dropped.
func SelectSuites(all []Suite, keys, tags []string) ([]Suite, error) {
	known := make(map[string]bool, len(all))
	for _, s := range all {
		known[s.Key] = true
	}
	for _, k := range keys {
		if !known[k] {
			return nil, fmt.Errorf("unknown suite %q", k)
		}
	}

	var out []Suite
	for _, s := range all {
		if len(keys) > 0 && !slices.Contains(keys, s.Key) {
			continue
		}
		if len(tags) > 0 {
			var cases []Case
			for _, tc := range s.Cases {
				if slices.ContainsFunc(tags, tc.HasTag) {
					cases = append(cases, tc)
				}
			}
			s.Cases = cases
		}
		if len(s.Cases) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

// RunAPI runs the selected suites against cfg.BaseURL, writes one Allure
// result per case and persists report.json.
func RunAPI(ctx context.Context, cfg toolkit.Config, opts Options) (toolkit.RunReport, error) {
	log.Infof("runner.run_api: start base_url=%s suites=%v tags=%v", cfg.BaseURL, opts.Suites, opts.Tags)

	suites, err := SelectSuites(AllSuites(), opts.Suites, opts.Tags)
	if err != nil {
		return toolkit.RunReport{}, err
	}
	if len(suites) == 0 {
		return toolkit.RunReport{}, fmt.Errorf("no cases selected")
	}

	fx, err := toolkit.LoadFixtures(cfg.FixturesDir)
	if err != nil {
		log.Errorf("runner.run_api: fixtures load failed dir=%s error=%v", cfg.FixturesDir, err)
		return toolkit.RunReport{}, err
	}

	resultsDir := stringsTrimOrDefault(opts.ResultsDir, cfg.ResultsDir)
	reportPath := stringsTrimOrDefault(opts.ReportPath, cfg.ReportPath)
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return toolkit.RunReport{}, fmt.Errorf("prepare results dir %q: %w", resultsDir, err)
	}

	session := NewSession(cfg, toolkit.NewClient(cfg), fx)
	report := Run(ctx, session, suites, allureHook(resultsDir))
	report.Persisted = false
	if err := session.Cleanup(context.WithoutCancel(ctx)); err != nil {
		log.Warnf("runner.run_api: cleanup incomplete error=%v", err)
	}

	path, err := filepath.Abs(reportPath)
	if err != nil {
		log.Errorf("runner.run_api: failed resolve report path error=%v", err)
		return report, err
	}
	log.Debugf("runner.run_api: writing file=%s", path)
	if err := allure.WriteJSON(path, report); err != nil {
		log.Errorf("runner.run_api: failed write report path=%s error=%v", path, err)
		return report, fmt.Errorf("persist report json: %w", err)
	}
	report.Persisted = true
	log.Infof("runner.run_api: report persisted path=%s", path)
	return report, nil
}

// allureHook writes every finished case into resultsDir. Write failures are
// logged; they never fail the case.
func allureHook(resultsDir string) caseHook {
	return func(suite Suite, tc Case, res toolkit.CaseResult) {
		r := toAllureResult(suite, res)
		if res.Body != "" {
			att, err := allure.WriteAttachment(resultsDir, "response body", "application/json", ".json", []byte(res.Body))
			if err != nil {
				log.Warnf("runner.allure: attachment failed test_id=%s error=%v", tc.ID, err)
			} else {
				r.Attachments = append(r.Attachments, att)
			}
		}
		if _, err := allure.WriteResult(resultsDir, r); err != nil {
			log.Warnf("runner.allure: result write failed test_id=%s error=%v", tc.ID, err)
		}
	}
}

func toAllureResult(suite Suite, res toolkit.CaseResult) allure.Result {
	fullName := fmt.Sprintf("serverest/%s#%s", suite.Spec, res.TestID)
	r := allure.Result{
		Name:        fmt.Sprintf("%s %s", res.TestID, res.Title),
		FullName:    fullName,
		HistoryID:   allure.HistoryID(fullName),
		Description: fmt.Sprintf("%s %s", res.Method, suite.Endpoint),
		Status:      allureStatus(res),
		Stage:       "finished",
		Start:       res.Start.UnixMilli(),
		Stop:        res.Stop.UnixMilli(),
		Labels:      suite.Category().Labels(),
	}
	r.Labels = append(r.Labels,
		allure.Label{Name: "parentSuite", Value: string(suite.Category())},
		allure.Label{Name: "subSuite", Value: suite.Name},
	)
	for _, tag := range res.Tags {
		r.Labels = append(r.Labels, allure.Label{Name: "tag", Value: tag})
	}

	if res.Why != "" || res.Error != "" {
		r.StatusDetails = &allure.StatusDetails{Message: res.Why, Trace: res.Error}
	}
	r.Parameters = []allure.Parameter{{Name: "method", Value: res.Method}}
	if res.URL != "" {
		r.Parameters = append(r.Parameters, allure.Parameter{Name: "url", Value: res.URL})
	}
	if res.Status != 0 {
		r.Parameters = append(r.Parameters, allure.Parameter{Name: "status", Value: fmt.Sprint(res.Status)})
	}
	if len(res.ExpectedStatus) > 0 {
		r.Parameters = append(r.Parameters, allure.Parameter{Name: "expected status", Value: joinInts(res.ExpectedStatus)})
	}
	return r
}

func allureStatus(res toolkit.CaseResult) string {
	switch {
	case res.Skipped:
		return allure.StatusSkipped
	case res.Passed:
		return allure.StatusPassed
	case res.Failure == FailureTransport || res.Failure == FailureSetup || res.Failure == FailureRequestBuild:
		return allure.StatusBroken
	}
	return allure.StatusFailed
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, "|")
}

func stringsTrimOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
