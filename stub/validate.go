package stub

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9]{16}$`)
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

type fieldRule struct {
	name     string
	required bool
	email    bool
	enum     []string
}

var (
	userRules = []fieldRule{
		{name: "nome", required: true},
		{name: "email", required: true, email: true},
		{name: "password", required: true},
		{name: "administrador", required: true, enum: []string{"true", "false"}},
	}
	loginRules = []fieldRule{
		{name: "email", required: true, email: true},
		{name: "password", required: true},
	}
	queryRules = []fieldRule{
		{name: "_id"},
		{name: "nome"},
		{name: "email", email: true},
		{name: "password"},
		{name: "administrador", enum: []string{"true", "false"}},
	}
)

// validateBody reports every field error of body, keyed by field, the way
// ServeRest does. A nil map means the body is valid.
func validateBody(body map[string]any, rules []fieldRule) map[string]string {
	errs := map[string]string{}
	for k := range body {
		if !slices.ContainsFunc(rules, func(r fieldRule) bool { return r.name == k }) {
			errs[k] = k + " não é permitido"
		}
	}
	for _, r := range rules {
		v, ok := body[r.name]
		if !ok {
			if r.required {
				errs[r.name] = r.name + " é obrigatório"
			}
			continue
		}
		if msg := r.check(v); msg != "" {
			errs[r.name] = msg
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// validateQuery applies the listing filter rules. A repeated key is not a
// string to ServeRest, so it is reported as such.
func validateQuery(q url.Values) map[string]string {
	errs := map[string]string{}
	for k, vs := range q {
		idx := slices.IndexFunc(queryRules, func(r fieldRule) bool { return r.name == k })
		if idx < 0 {
			errs[k] = k + " não é permitido"
			continue
		}
		if len(vs) > 1 {
			errs[k] = k + " deve ser uma string"
			continue
		}
		if msg := queryRules[idx].check(vs[0]); msg != "" {
			errs[k] = msg
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (r fieldRule) check(v any) string {
	if len(r.enum) > 0 {
		s, ok := v.(string)
		if !ok || !slices.Contains(r.enum, s) {
			return fmt.Sprintf("%s deve ser %s", r.name, quoteEnum(r.enum))
		}
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return r.name + " deve ser uma string"
	}
	if strings.TrimSpace(s) == "" {
		return r.name + " não pode ficar em branco"
	}
	if r.email && !emailPattern.MatchString(s) {
		return r.name + " deve ser um email válido"
	}
	return ""
}

func quoteEnum(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return strings.Join(quoted, " ou ")
}

func validID(id string) bool {
	return idPattern.MatchString(id)
}
