// Package allure reads, writes and partitions Allure result files.
package allure

import (
	"fmt"
	"strings"
)

const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusBroken  = "broken"
	StatusSkipped = "skipped"

	ResultSuffix = "-result.json"
)

type Label struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type StatusDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

type Parameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Attachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type,omitempty"`
}

type Timing struct {
	Start int64 `json:"start,omitempty"`
	Stop  int64 `json:"stop,omitempty"`
}

// Result is one test-result record as emitted by Allure adapters.
// Start and Stop are Unix milliseconds.
type Result struct {
	UUID          string         `json:"uuid"`
	HistoryID     string         `json:"historyId,omitempty"`
	Name          string         `json:"name"`
	FullName      string         `json:"fullName,omitempty"`
	Description   string         `json:"description,omitempty"`
	Status        string         `json:"status"`
	Stage         string         `json:"stage,omitempty"`
	StatusDetails *StatusDetails `json:"statusDetails,omitempty"`
	Start         int64          `json:"start,omitempty"`
	Stop          int64          `json:"stop,omitempty"`
	Time          *Timing        `json:"time,omitempty"`
	Labels        []Label        `json:"labels"`
	Parameters    []Parameter    `json:"parameters,omitempty"`
	Attachments   []Attachment   `json:"attachments,omitempty"`
}

// LabelValue returns the first label with the given name.
func (r Result) LabelValue(name string) (string, bool) {
	for _, l := range r.Labels {
		if l.Name == name {
			return l.Value, true
		}
	}
	return "", false
}

func (r Result) LabelValues(name string) []string {
	var out []string
	for _, l := range r.Labels {
		if l.Name == name {
			out = append(out, l.Value)
		}
	}
	return out
}

// StartMillis prefers the top-level start and falls back to time.start.
// Zero means the record carries no timestamp.
func (r Result) StartMillis() int64 {
	if r.Start != 0 {
		return r.Start
	}
	if r.Time != nil {
		return r.Time.Start
	}
	return 0
}

// Category is the test layer a result belongs to.
type Category string

const (
	CategoryAPI Category = "API"
	CategoryUI  Category = "UI"
)

func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(CategoryAPI):
		return CategoryAPI, nil
	case string(CategoryUI):
		return CategoryUI, nil
	}
	return "", fmt.Errorf("unknown category %q (want api or ui)", s)
}

func (c Category) Lower() string {
	return strings.ToLower(string(c))
}

// ReportDir is the default output directory name for the category's report.
func (c Category) ReportDir() string {
	return "allure-report-" + c.Lower()
}

// Labels returns the labels that mark a result as belonging to c.
func (c Category) Labels() []Label {
	switch c {
	case CategoryAPI:
		return []Label{
			{Name: "epic", Value: "API Tests"},
			{Name: "feature", Value: "API - ServeRest"},
			{Name: "story", Value: "API Endpoints"},
			{Name: "testType", Value: "API"},
			{Name: "layer", Value: "api"},
			{Name: "suite", Value: "API Tests"},
			{Name: "package", Value: "api"},
		}
	case CategoryUI:
		return []Label{
			{Name: "epic", Value: "UI Tests"},
			{Name: "feature", Value: "UI - ServeRest Frontend"},
			{Name: "story", Value: "UI E2E Tests"},
			{Name: "testType", Value: "UI"},
			{Name: "layer", Value: "ui"},
			{Name: "suite", Value: "UI Tests"},
			{Name: "package", Value: "ui"},
		}
	}
	return nil
}

// Matches reports whether r belongs to c. Any one signal is enough: a suite,
// epic or testType label mentioning the category, a layer or package label
// equal to it, or a spec path segment in fullName (historyId as fallback).
func (r Result) Matches(c Category) bool {
	want := string(c)
	lower := c.Lower()
	mentions := func(v string) bool {
		return v != "" && strings.Contains(strings.ToUpper(v), want)
	}

	for _, v := range r.LabelValues("suite") {
		if mentions(v) {
			return true
		}
	}
	if v, ok := r.LabelValue("epic"); ok && mentions(v) {
		return true
	}
	if v, ok := r.LabelValue("testType"); ok && mentions(v) {
		return true
	}
	if v, ok := r.LabelValue("layer"); ok && v == lower {
		return true
	}
	if v, ok := r.LabelValue("package"); ok && v == lower {
		return true
	}

	name := r.FullName
	if name == "" {
		name = r.HistoryID
	}
	return strings.Contains(name, "/"+lower+"/") || strings.Contains(name, `\`+lower+`\`)
}
