package toolkit

import "time"

// -- ServeRest payloads

// User is the ServeRest user record. Administrador is the string "true" or "false".
type User struct {
	ID            string `json:"_id,omitempty"`
	Nome          string `json:"nome"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	Administrador string `json:"administrador"`
}

type UserList struct {
	Quantidade int    `json:"quantidade"`
	Usuarios   []User `json:"usuarios"`
}

type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"_id,omitempty"`
}

type LoginResponse struct {
	Message       string `json:"message"`
	Authorization string `json:"authorization"`
}

// -- Report

type RunReport struct {
	// Final run report. Written to report.json after every run.
	Summary   RunSummary   `json:"summary"`
	BaseURL   string       `json:"base_url"`
	StartedAt time.Time    `json:"started_at"`
	Persisted bool         `json:"persisted"`
	Results   []CaseResult `json:"results"`
}

type RunSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

type CaseResult struct {
	Suite    string   `json:"suite"`
	Spec     string   `json:"spec"`
	Endpoint string   `json:"endpoint"`
	Method   string   `json:"method"`
	TestID   string   `json:"test_id"`
	Title    string   `json:"title"`
	Tags     []string `json:"tags,omitempty"`
	Passed   bool     `json:"passed"`
	Skipped  bool     `json:"skipped,omitempty"`
	Failure  string   `json:"failure_type,omitempty"`
	Why      string   `json:"why_failed,omitempty"`
	Error    string   `json:"error,omitempty"`

	ExpectedStatus  []int `json:"expected_status,omitempty"`
	ExpectedContent any   `json:"expected_content,omitempty"`

	URL    string `json:"url,omitempty"`
	Status int    `json:"status"`
	Body   string `json:"body,omitempty"`

	LatencyMS int64     `json:"latency_ms"`
	Start     time.Time `json:"start"`
	Stop      time.Time `json:"stop"`
}
