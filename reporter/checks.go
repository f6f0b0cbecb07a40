package reporter

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"serverest/toolkit"
)

// Failure types reported in CaseResult.Failure.
const (
	FailureRequestBuild  = "request_build_error"
	FailureTransport     = "transport_error"
	FailureSetup         = "setup_error"
	FailureStatus        = "status_mismatch"
	FailureResponseParse = "response_parse_error"
	FailureContent       = "content_mismatch"
	FailureHeader        = "header_mismatch"
	FailureSchema        = "schema_mismatch"
)

// AssertionError is a failed check. Kind is one of the Failure* constants.
type AssertionError struct {
	Kind string
	Why  string
}

func (e *AssertionError) Error() string {
	return e.Kind + ": " + e.Why
}

func failf(kind, format string, args ...any) error {
	return &AssertionError{Kind: kind, Why: fmt.Sprintf(format, args...)}
}

// Response is the response under test. The body is decoded at most once.
type Response struct {
	toolkit.Response

	schemas  *SchemaSet
	decoded  bool
	parsed   any
	parseErr error
}

func newResponse(res toolkit.Response, schemas *SchemaSet) *Response {
	return &Response{Response: res, schemas: schemas}
}

func (r *Response) JSON() (any, error) {
	if !r.decoded {
		r.decoded = true
		if err := json.Unmarshal(r.Body, &r.parsed); err != nil {
			r.parseErr = err
		}
	}
	return r.parsed, r.parseErr
}

// Check inspects a response and returns nil when it holds.
type Check func(r *Response) error

// TypicalJSONHeaders asserts the headers ServeRest sends on every JSON response.
func TypicalJSONHeaders() Check {
	return func(r *Response) error {
		if err := JSONContentType()(r); err != nil {
			return err
		}
		if got := r.Header.Get("X-Content-Type-Options"); got != "nosniff" {
			return failf(FailureHeader, "x-content-type-options: expected=%q got=%q", "nosniff", got)
		}
		if got := r.Header.Get("X-Xss-Protection"); got != "1; mode=block" {
			return failf(FailureHeader, "x-xss-protection: expected=%q got=%q", "1; mode=block", got)
		}
		sts := r.Header.Get("Strict-Transport-Security")
		if sts == "" {
			return failf(FailureHeader, "strict-transport-security header missing")
		}
		if !strings.Contains(sts, "max-age=15552000") {
			return failf(FailureHeader, "strict-transport-security: expected max-age=15552000 got=%q", sts)
		}
		return nil
	}
}

func JSONContentType() Check {
	return func(r *Response) error {
		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return failf(FailureHeader, "content-type header missing")
		}
		if !strings.Contains(ct, "application/json") {
			return failf(FailureHeader, "content-type: expected application/json got=%q", ct)
		}
		return nil
	}
}

// MatchesSchema validates the body against a named fixture schema.
func MatchesSchema(name string) Check {
	return func(r *Response) error {
		if r.schemas == nil {
			return fmt.Errorf("no schemas loaded for %q", name)
		}
		return r.schemas.Validate(name, r.Body)
	}
}

// Field asserts the value at path. Objects match as subsets and "..." matches
// any non-empty value, as in Expectation.Content.
func Field(path string, want any) Check {
	want = normalize(want)
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		if p, exp, act, diff := firstContentDifference(displayPath(path), want, v); diff {
			return failf(FailureContent, "%s: expected=%s got=%s", p, exp, act)
		}
		return nil
	}
}

func FieldMatches(path string, re *regexp.Regexp) Check {
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		s := fmt.Sprint(v)
		if !re.MatchString(s) {
			return failf(FailureContent, "%s: %q does not match /%s/", displayPath(path), s, re.String())
		}
		return nil
	}
}

// FieldContains asserts that the string at path contains sub.
func FieldContains(path, sub string) Check {
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		s, ok := v.(string)
		if !ok || !strings.Contains(s, sub) {
			return failf(FailureContent, "%s: expected to contain %q got=%s", displayPath(path), sub, compactForReport(v))
		}
		return nil
	}
}

// HasKeys asserts the object at path has at least keys.
func HasKeys(path string, keys ...string) Check {
	return func(r *Response) error {
		obj, err := objectAt(r, path)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if _, ok := obj[k]; !ok {
				return failf(FailureContent, "%s: missing key %q", displayPath(path), k)
			}
		}
		return nil
	}
}

// ExactKeys asserts the object at path has exactly keys.
func ExactKeys(path string, keys ...string) Check {
	return func(r *Response) error {
		obj, err := objectAt(r, path)
		if err != nil {
			return err
		}
		got := make([]string, 0, len(obj))
		for k := range obj {
			got = append(got, k)
		}
		want := append([]string(nil), keys...)
		sort.Strings(got)
		sort.Strings(want)
		if strings.Join(got, ",") != strings.Join(want, ",") {
			return failf(FailureContent, "%s: expected keys %v got %v", displayPath(path), want, got)
		}
		return nil
	}
}

// AtLeast asserts a number, or the length of an array, at path is >= n.
func AtLeast(path string, n int) Check {
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		got, ok := sizeOf(v)
		if !ok {
			return failf(FailureContent, "%s: expected number or array got=%s", displayPath(path), compactForReport(v))
		}
		if got < float64(n) {
			return failf(FailureContent, "%s: expected at least %d got=%v", displayPath(path), n, got)
		}
		return nil
	}
}

// Len asserts the array at path has exactly n elements.
func Len(path string, n int) Check {
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		arr, ok := v.([]any)
		if !ok {
			return failf(FailureContent, "%s: expected array got=%s", displayPath(path), compactForReport(v))
		}
		if len(arr) != n {
			return failf(FailureContent, "%s: expected len=%d got len=%d", displayPath(path), n, len(arr))
		}
		return nil
	}
}

// EachField asserts pred for field of every element of the array at path.
func EachField(path, field, desc string, pred func(v any) bool) Check {
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		arr, ok := v.([]any)
		if !ok {
			return failf(FailureContent, "%s: expected array got=%s", displayPath(path), compactForReport(v))
		}
		for i, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				return failf(FailureContent, "%s[%d]: expected object", displayPath(path), i)
			}
			if !pred(obj[field]) {
				return failf(FailureContent, "%s[%d].%s: expected %s got=%s", displayPath(path), i, field, desc, compactForReport(obj[field]))
			}
		}
		return nil
	}
}

// OnStatus runs checks only when the response has the given status.
func OnStatus(status int, checks ...Check) Check {
	return func(r *Response) error {
		if r.Status != status {
			return nil
		}
		return runChecks(r, checks)
	}
}

// AnyOf passes when at least one check passes and reports every failure otherwise.
func AnyOf(checks ...Check) Check {
	return func(r *Response) error {
		var whys []string
		kind := FailureContent
		for _, c := range checks {
			err := c(r)
			if err == nil {
				return nil
			}
			var ae *AssertionError
			if errors.As(err, &ae) {
				kind = ae.Kind
				whys = append(whys, ae.Why)
				continue
			}
			whys = append(whys, err.Error())
		}
		return failf(kind, "none matched: %s", strings.Join(whys, " | "))
	}
}

// BearerJWT asserts the string at path is "Bearer <jwt>" whose claims include
// want and whose exp is after iat. The signature is not verified; the signing
// key belongs to the server.
func BearerJWT(path string, want map[string]any) Check {
	return func(r *Response) error {
		v, err := at(r, path)
		if err != nil {
			return err
		}
		s, _ := v.(string)
		token, ok := strings.CutPrefix(s, "Bearer ")
		if !ok || token == "" {
			return failf(FailureContent, "%s: expected Bearer token got=%s", displayPath(path), compactForReport(v))
		}

		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return failf(FailureContent, "%s: token is not a JWT: %v", displayPath(path), err)
		}
		iat, err := claims.GetIssuedAt()
		if err != nil || iat == nil {
			return failf(FailureContent, "%s: token has no iat claim", displayPath(path))
		}
		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil {
			return failf(FailureContent, "%s: token has no exp claim", displayPath(path))
		}
		if !exp.After(iat.Time) {
			return failf(FailureContent, "%s: token exp %s is not after iat %s", displayPath(path), exp, iat)
		}
		for k, w := range want {
			if fmt.Sprint(claims[k]) != fmt.Sprint(w) {
				return failf(FailureContent, "%s: claim %s expected=%v got=%v", displayPath(path), k, w, claims[k])
			}
		}
		return nil
	}
}

// ---------- helpers

func runChecks(r *Response, checks []Check) error {
	for _, c := range checks {
		if err := c(r); err != nil {
			return err
		}
	}
	return nil
}

func at(r *Response, path string) (any, error) {
	doc, err := r.JSON()
	if err != nil {
		return nil, failf(FailureResponseParse, "response body is not valid JSON: %v", err)
	}
	v, ok := lookup(doc, path)
	if !ok {
		return nil, failf(FailureContent, "%s: <missing>", displayPath(path))
	}
	return v, nil
}

func objectAt(r *Response, path string) (map[string]any, error) {
	v, err := at(r, path)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, failf(FailureContent, "%s: expected object got=%s", displayPath(path), compactForReport(v))
	}
	return obj, nil
}

// lookup walks a dotted path; numeric segments index arrays. "" is the root.
func lookup(doc any, path string) (any, bool) {
	if path == "" {
		return doc, true
	}
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

func displayPath(path string) string {
	if path == "" {
		return "$"
	}
	return "$." + path
}

func sizeOf(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case []any:
		return float64(len(t)), true
	}
	return 0, false
}

// normalize turns Go literals (ints, typed maps, structs) into the shapes
// encoding/json produces so they compare against decoded bodies.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return v
	}
	return out
}
