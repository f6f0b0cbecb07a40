package reporter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"serverest/toolkit"
)

// ServeRest response messages asserted by the suites.
const (
	msgRegistered  = "Cadastro realizado com sucesso"
	msgNotFound    = "Usuário não encontrado"
	msgDeleted     = "Registro excluído com sucesso"
	msgIDFormat    = "id deve ter exatamente 16 caracteres alfanuméricos"
	msgInvalidMail = "email deve ser um email válido"
	msgAdminEnum   = "administrador deve ser 'true' ou 'false'"
)

const (
	tagPositive = "positive"
	tagNegative = "negative"
	tagSmoke    = "smoke"
)

var (
	negative      = []string{tagNegative}
	positive      = []string{tagPositive}
	positiveSmoke = []string{tagPositive, tagSmoke}
)

func equals(want string) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && s == want
	}
}

func contains(sub string) func(any) bool {
	return func(v any) bool {
		s, ok := v.(string)
		return ok && strings.Contains(s, sub)
	}
}

func seeded(s *Session, key string) (toolkit.User, error) {
	u, ok := s.User(key)
	if !ok || u.ID == "" {
		return toolkit.User{}, skipf("fixture user %s was not seeded", key)
	}
	return u, nil
}

// -- POST /usuarios

func createUserSuite() Suite {
	return Suite{
		Key:      "create",
		Name:     "API /usuarios :: create",
		Spec:     "api/1-post.usuarios",
		Method:   http.MethodPost,
		Endpoint: "/usuarios",
		Cases: []Case{
			{
				ID: "CT-001", Title: "[400] e-mail already registered", Tags: negative,
				Build: func(ctx context.Context, s *Session) (toolkit.Request, Expectation, error) {
					payload, err := s.CreatePayload("CT001_duplicate", nil)
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					// The first registration may already exist from an earlier run.
					if _, _, err := s.Client.CreateUser(ctx, payload); err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					return toolkit.Request{Body: payload}, Expectation{
						Status:  []int{http.StatusBadRequest},
						Content: map[string]any{"message": msgEmailInUse},
						Checks:  []Check{TypicalJSONHeaders(), MatchesSchema("usuario.create.emailInUse")},
					}, nil
				},
			},
			invalidPayloadCase("CT-002", "[400] required field missing: nome", "CT002_missingNome", "nome", "nome é obrigatório"),
			invalidPayloadCase("CT-003", "[400] required field missing: email", "CT003_missingEmail", "email", "email é obrigatório"),
			invalidPayloadCase("CT-004", "[400] required field missing: password", "CT004_missingPassword", "password", "password é obrigatório"),
			invalidPayloadCase("CT-005", "[400] required field missing: administrador", "CT005_missingAdministrador", "administrador", "administrador é obrigatório"),
			invalidPayloadCase("CT-006", "[400] administrador outside the enum", "CT006_invalidAdm", "administrador", msgAdminEnum),
			invalidPayloadCase("CT-007", "[400] email is not a string", "CT007_emailNotString", "email", "email deve ser uma string"),
			invalidPayloadCase("CT-008", "[400] malformed e-mail", "CT008_emailBadFormat", "email", msgInvalidMail),
			invalidPayloadCase("CT-009", "[400] empty password", "CT009_passwordEmpty", "password", "password não pode ficar em branco"),
			{
				ID: "CT-010", Title: "[400] empty payload {}", Tags: negative,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					payload, err := s.CreatePayload("CT011_emptyObject", nil)
					return toolkit.Request{Body: payload}, Expectation{
						Status: []int{http.StatusBadRequest},
						Checks: []Check{TypicalJSONHeaders(), HasKeys("", "nome", "email", "password", "administrador")},
					}, err
				},
			},
			{
				ID: "CT-011", Title: "[400] boundary: 260-character name", Tags: negative,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					payload, err := s.CreatePayload("CT013_longName", map[string]any{"email": toolkit.UniqueEmail("user")})
					return toolkit.Request{Body: payload}, Expectation{
						Status: []int{http.StatusCreated, http.StatusBadRequest},
						Checks: []Check{
							TypicalJSONHeaders(),
							OnStatus(http.StatusCreated, MatchesSchema("usuario.create.success")),
							OnStatus(http.StatusBadRequest, Field("message", "nome deve ter no máximo 250 caracteres")),
						},
					}, err
				},
			},
			{
				ID: "CT-012", Title: "[400] boundary: 3-character password", Tags: negative,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					payload, err := s.CreatePayload("CT014_shortPwd", map[string]any{"email": toolkit.UniqueEmail("user")})
					return toolkit.Request{Body: payload}, Expectation{
						Status: []int{http.StatusCreated, http.StatusBadRequest},
						Checks: []Check{
							OnStatus(http.StatusCreated, MatchesSchema("usuario.create.success")),
							OnStatus(http.StatusBadRequest, TypicalJSONHeaders(), Field("message", "password deve ter no mínimo 4 caracteres")),
						},
					}, err
				},
			},
			validRegistrationCase("CT-013", `[201] valid registration with administrador "true"`, "CT015_validAdminTrue", positiveSmoke),
			validRegistrationCase("CT-014", `[201] valid registration with administrador "false"`, "CT016_validAdminFalse", positive),
		},
	}
}

func invalidPayloadCase(id, title, fixture, field, msg string) Case {
	return Case{
		ID: id, Title: title, Tags: negative,
		Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
			payload, err := s.CreatePayload(fixture, nil)
			return toolkit.Request{Body: payload}, Expectation{
				Status:  []int{http.StatusBadRequest},
				Content: map[string]any{field: msg},
				Checks:  []Check{TypicalJSONHeaders()},
			}, err
		},
	}
}

func validRegistrationCase(id, title, fixture string, tags []string) Case {
	return Case{
		ID: id, Title: title, Tags: tags,
		Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
			payload, err := s.CreatePayload(fixture, map[string]any{"email": toolkit.UniqueEmail("user")})
			return toolkit.Request{Body: payload}, Expectation{
				Status:  []int{http.StatusCreated},
				Content: map[string]any{"message": msgRegistered, "_id": "..."},
				Checks:  []Check{TypicalJSONHeaders(), MatchesSchema("usuario.create.success")},
			}, err
		},
	}
}

// -- GET /usuarios

var listSeed = []string{
	"admin_user",
	"regular_user",
	"duplicate_name_user",
	"duplicate_name_user2",
	"special_chars_user",
	"case_sensitive_user",
	"substring_test_user",
	"combination_test_user",
}

func listUsersSuite() Suite {
	listOK := func(extra ...Check) Expectation {
		return Expectation{
			Status: []int{http.StatusOK},
			Checks: append(append([]Check{TypicalJSONHeaders()}, extra...), MatchesSchema("usuarios.list.success")),
		}
	}
	empty := func() Expectation {
		exp := listOK(Len("usuarios", 0))
		exp.Content = map[string]any{"quantidade": 0}
		return exp
	}
	queryError := func(field, msg string) Expectation {
		return Expectation{
			Status:  []int{http.StatusBadRequest},
			Content: map[string]any{field: msg},
			Checks:  []Check{TypicalJSONHeaders()},
		}
	}
	// createThen registers a user built from the valid fixture and lets the
	// case derive its query from it.
	createThen := func(overrides func() map[string]any, build func(u toolkit.User) (url.Values, Expectation)) func(context.Context, *Session) (toolkit.Request, Expectation, error) {
		return func(ctx context.Context, s *Session) (toolkit.Request, Expectation, error) {
			payload, err := s.CreatePayload("CT015_validAdminTrue", overrides())
			if err != nil {
				return toolkit.Request{}, Expectation{}, err
			}
			id, err := s.CreateUser(ctx, payload)
			if err != nil {
				return toolkit.Request{}, Expectation{}, err
			}
			u := toolkit.User{
				ID:            id,
				Nome:          fmt.Sprint(payload["nome"]),
				Email:         fmt.Sprint(payload["email"]),
				Password:      fmt.Sprint(payload["password"]),
				Administrador: fmt.Sprint(payload["administrador"]),
			}
			q, exp := build(u)
			return toolkit.Request{Query: q}, exp, nil
		}
	}
	stamp := func() int64 { return time.Now().UnixMilli() }

	return Suite{
		Key:      "list",
		Name:     "API /usuarios :: list",
		Spec:     "api/2-get.usuarios",
		Method:   http.MethodGet,
		Endpoint: "/usuarios",
		Seed:     listSeed,
		Cases: []Case{
			{
				ID: "CT-001", Title: "[400] e-mail filter without @", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"email": {"email-invalido"}}},
				Expect:  queryError("email", msgInvalidMail),
			},
			{
				ID: "CT-002", Title: "[400] administrador filter outside the enum (maybe)", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"administrador": {"maybe"}}},
				Expect:  queryError("administrador", msgAdminEnum),
			},
			{
				ID: "CT-003", Title: "[200] unknown _id filter", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"_id": {"ZZZnaoExiste123"}}},
				Expect:  empty(),
			},
			{
				ID: "CT-004", Title: "[400] unsupported query parameter (foo=bar)", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"foo": {"bar"}}},
				Expect:  queryError("foo", "foo não é permitido"),
			},
			{
				ID: "CT-005", Title: "[200] unknown password filter", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"password": {"senha_que_nao_existe_123"}}},
				Expect:  empty(),
			},
			{
				ID: "CT-006", Title: "[200] regex-like characters in nome", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"nome": {"*{[]}?^$"}}},
				Expect:  listOK(Field("quantidade", 0)),
			},
			{
				ID: "CT-007", Title: "[200] mutually exclusive filters (email of A, nome of B)", Tags: negative,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					a, err := seeded(s, "admin_user")
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					b, err := seeded(s, "regular_user")
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					return toolkit.Request{Query: url.Values{"email": {a.Email}, "nome": {b.Nome}}}, empty(), nil
				},
			},
			{
				ID: "CT-008", Title: "[200] lower-cased nome (case sensitivity observed)", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"nome": {"joão da silva qa"}}},
				Expect:  listOK(),
			},
			{
				ID: "CT-009", Title: "[200] partial nome (substring match observed)", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"nome": {"Joaquina"}}},
				Expect:  listOK(),
			},
			{
				ID: "CT-010", Title: "[400] GET with an unexpected body", Tags: negative,
				Request: toolkit.Request{Body: map[string]any{"qualquer": "coisa"}},
				Expect:  Expectation{Status: []int{http.StatusBadRequest}},
			},
			{
				ID: "CT-011", Title: "[200] no Accept header", Tags: negative,
				Request: toolkit.Request{OmitAccept: true},
				Expect: Expectation{
					Status: []int{http.StatusOK},
					Checks: []Check{JSONContentType(), MatchesSchema("usuarios.list.success")},
				},
			},
			{
				ID: "CT-012", Title: "[400] repeated query parameter", Tags: negative,
				Request: toolkit.Request{Query: url.Values{"email": {"x@qa.com", "y@qa.com"}}},
				Expect:  queryError("email", "email deve ser uma string"),
			},
			{
				ID: "CT-013", Title: "[200] padded nome value (trim observed)", Tags: negative,
				Build: createThen(
					func() map[string]any { return map[string]any{"email": toolkit.UniqueEmail("carlos"), "nome": "Carlos QA"} },
					func(toolkit.User) (url.Values, Expectation) {
						return url.Values{"nome": {" Carlos QA "}}, listOK()
					},
				),
			},
			{
				ID: "CT-014", Title: "[200] list everything", Tags: positiveSmoke,
				Expect: listOK(
					AtLeast("quantidade", 1),
					AtLeast("usuarios", 1),
					ExactKeys("usuarios.0", "nome", "email", "password", "administrador", "_id"),
					FieldMatches("usuarios.0.administrador", regexp.MustCompile(`^(true|false)$`)),
				),
			},
			{
				ID: "CT-015", Title: "[200] filter by _id (exact match)", Tags: positive,
				Build: createThen(
					func() map[string]any { return map[string]any{"email": toolkit.UniqueEmail("filtro_id")} },
					func(u toolkit.User) (url.Values, Expectation) {
						exp := listOK(Field("usuarios.0._id", u.ID))
						exp.Content = map[string]any{"quantidade": 1}
						return url.Values{"_id": {u.ID}}, exp
					},
				),
			},
			{
				ID: "CT-016", Title: "[200] filter by email (exact match)", Tags: positive,
				Build: createThen(
					func() map[string]any { return map[string]any{"email": toolkit.UniqueEmail("filtro_email")} },
					func(u toolkit.User) (url.Values, Expectation) {
						exp := listOK(Field("usuarios.0.email", u.Email))
						exp.Content = map[string]any{"quantidade": 1}
						return url.Values{"email": {u.Email}}, exp
					},
				),
			},
			{
				ID: "CT-017", Title: "[200] filter by nome (exact match observed)", Tags: positive,
				Build: createThen(
					func() map[string]any {
						return map[string]any{"email": toolkit.UniqueEmail("nome"), "nome": fmt.Sprintf("Nome Unico %d", stamp())}
					},
					func(u toolkit.User) (url.Values, Expectation) {
						exp := listOK(Field("usuarios.0.nome", u.Nome))
						exp.Content = map[string]any{"quantidade": 1}
						return url.Values{"nome": {u.Nome}}, exp
					},
				),
			},
			{
				ID: "CT-018", Title: `[200] filter by administrador = "true"`, Tags: positive,
				Request: toolkit.Request{Query: url.Values{"administrador": {"true"}}},
				Expect:  listOK(AtLeast("quantidade", 1), EachField("usuarios", "administrador", `"true"`, equals("true"))),
			},
			{
				ID: "CT-019", Title: `[200] filter by administrador = "false"`, Tags: positive,
				Request: toolkit.Request{Query: url.Values{"administrador": {"false"}}},
				Expect:  listOK(AtLeast("quantidade", 1), EachField("usuarios", "administrador", `"false"`, equals("false"))),
			},
			{
				ID: "CT-020", Title: "[200] filter by password (exact match)", Tags: positive,
				Build: createThen(
					func() map[string]any {
						return map[string]any{"email": toolkit.UniqueEmail("password"), "password": "Teste@123"}
					},
					func(u toolkit.User) (url.Values, Expectation) {
						return url.Values{"password": {u.Password}}, listOK(
							AtLeast("quantidade", 1),
							EachField("usuarios", "password", fmt.Sprintf("%q", u.Password), equals(u.Password)),
						)
					},
				),
			},
			{
				ID: "CT-021", Title: "[200] combined filters (_id + email + nome)", Tags: positive,
				Build: createThen(
					func() map[string]any {
						return map[string]any{"email": toolkit.UniqueEmail("combinado"), "nome": fmt.Sprintf("Combinado %d", stamp())}
					},
					func(u toolkit.User) (url.Values, Expectation) {
						exp := listOK(
							Field("usuarios.0._id", u.ID),
							Field("usuarios.0.email", u.Email),
							Field("usuarios.0.nome", u.Nome),
						)
						exp.Content = map[string]any{"quantidade": 1}
						return url.Values{"_id": {u.ID}, "email": {u.Email}, "nome": {u.Nome}}, exp
					},
				),
			},
			{
				ID: "CT-022", Title: "[200] several users share a nome", Tags: positive,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					first, err := seeded(s, "duplicate_name_user")
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					if _, err := seeded(s, "duplicate_name_user2"); err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					return toolkit.Request{Query: url.Values{"nome": {first.Nome}}}, listOK(
						AtLeast("quantidade", 2),
						EachField("usuarios", "nome", `to contain "Nome Duplicado"`, contains("Nome Duplicado")),
					), nil
				},
			},
			{
				ID: "CT-023", Title: "[200] valid filter without results", Tags: positive,
				Build: func(context.Context, *Session) (toolkit.Request, Expectation, error) {
					email := fmt.Sprintf("nao.existe.%d@uorak.com", stamp())
					return toolkit.Request{Query: url.Values{"email": {email}}}, empty(), nil
				},
			},
		},
	}
}

// -- GET /usuarios/{id}

func getUserSuite() Suite {
	malformed := func(id, title, raw string) Case {
		return Case{
			ID: id, Title: title, Tags: negative,
			Request: toolkit.Request{PathParams: map[string]string{"id": raw}},
			Expect: Expectation{
				Status:  []int{http.StatusBadRequest},
				Content: map[string]any{"id": msgIDFormat},
				Checks:  []Check{TypicalJSONHeaders()},
			},
		}
	}
	found := func(id, title, key string) Case {
		return Case{
			ID: id, Title: title, Tags: positive,
			Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
				u, err := seeded(s, key)
				if err != nil {
					return toolkit.Request{}, Expectation{}, err
				}
				return toolkit.Request{PathParams: map[string]string{"id": u.ID}}, Expectation{
					Status: []int{http.StatusOK},
					Content: map[string]any{
						"_id":           u.ID,
						"nome":          u.Nome,
						"email":         u.Email,
						"password":      u.Password,
						"administrador": u.Administrador,
					},
					Checks: []Check{TypicalJSONHeaders(), MatchesSchema("usuario.byid.success")},
				}, nil
			},
		}
	}

	return Suite{
		Key:      "get",
		Name:     "API /usuarios/{_id} :: get by id",
		Spec:     "api/3-get.usuario.byid",
		Method:   http.MethodGet,
		Endpoint: "/usuarios/{id}",
		Seed:     []string{"admin_user", "regular_user", "case_sensitive_user"},
		Cases: []Case{
			malformed("CT-001", "[400] unknown _id (random string)", "ZZZnaoExiste123"),
			malformed("CT-002", "[400] numeric-looking _id", "123456789"),
			malformed("CT-003", "[400] _id with special characters", "id@#$%^&*()"),
			malformed("CT-004", "[400] _id with spaces (no trim)", " id com espacos "),
			malformed("CT-005", "[400] _id too long", strings.Repeat("a", 1000)),
			malformed("CT-006", "[400] _id too short", "abc"),
			{
				ID: "CT-007", Title: "[400] extra query parameters are ignored", Tags: negative,
				Request: toolkit.Request{
					PathParams: map[string]string{"id": "ZZZnaoExiste123"},
					Query:      url.Values{"foo": {"bar"}, "baz": {"qux"}},
				},
				Expect: Expectation{
					Status:  []int{http.StatusBadRequest},
					Content: map[string]any{"id": msgIDFormat},
					Checks:  []Check{TypicalJSONHeaders()},
				},
			},
			{
				ID: "CT-008", Title: "[400] no Accept header", Tags: negative,
				Request: toolkit.Request{PathParams: map[string]string{"id": "ZZZnaoExiste123"}, OmitAccept: true},
				Expect: Expectation{
					Status:  []int{http.StatusBadRequest},
					Content: map[string]any{"id": msgIDFormat},
					Checks:  []Check{JSONContentType()},
				},
			},
			found("CT-009", "[200] get admin by _id", "admin_user"),
			found("CT-010", "[200] get non-admin by _id", "regular_user"),
			{
				ID: "CT-011", Title: "[200/400] upper-cased _id (case sensitivity observed)", Tags: positive,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					u, err := seeded(s, "admin_user")
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					return toolkit.Request{PathParams: map[string]string{"id": strings.ToUpper(u.ID)}}, Expectation{
						Status: []int{http.StatusOK, http.StatusBadRequest},
						Checks: []Check{
							TypicalJSONHeaders(),
							OnStatus(http.StatusOK, Field("_id", u.ID), MatchesSchema("usuario.byid.success")),
							OnStatus(http.StatusBadRequest, Field("message", msgNotFound), MatchesSchema("usuario.byid.error")),
						},
					}, nil
				},
			},
			{
				ID: "CT-012", Title: "[400] _id followed by encoded query characters", Tags: positive,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					u, err := seeded(s, "admin_user")
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					return toolkit.Request{PathParams: map[string]string{"id": u.ID + "?test=1&value=2"}}, Expectation{
						Status: []int{http.StatusBadRequest},
						Checks: []Check{
							TypicalJSONHeaders(),
							AnyOf(Field("message", msgNotFound), Field("id", msgIDFormat)),
						},
					}, nil
				},
			},
		},
	}
}

// -- DELETE /usuarios/{id}

func deleteUserSuite() Suite {
	deleted := func(id, title, key string) Case {
		return Case{
			ID: id, Title: title, Tags: positive,
			Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
				u, err := seeded(s, key)
				if err != nil {
					return toolkit.Request{}, Expectation{}, err
				}
				return toolkit.Request{PathParams: map[string]string{"id": u.ID}}, Expectation{
					Status:  []int{http.StatusOK},
					Content: map[string]any{"message": msgDeleted},
					Checks:  []Check{TypicalJSONHeaders(), MatchesSchema("usuario.delete.success")},
				}, nil
			},
		}
	}

	return Suite{
		Key:      "delete",
		Name:     "API /usuarios/{_id} :: delete",
		Spec:     "api/4-delete.usuarios",
		Method:   http.MethodDelete,
		Endpoint: "/usuarios/{id}",
		Seed:     []string{"admin_user", "regular_user", "update_user", "delete_user", "case_sensitive_user", "special_chars_user"},
		Cases: []Case{
			deleted("CT-006", "[200] delete a valid user", "delete_user"),
			deleted("CT-007", "[200] delete an administrator", "admin_user"),
			deleted("CT-008", "[200] delete a non-administrator", "regular_user"),
			deleted("CT-010", "[200] delete a user whose name has accents and symbols", "special_chars_user"),
			{
				ID: "CT-NEG-001", Title: "[400] delete without an id", Tags: negative,
				Request: toolkit.Request{PathParams: map[string]string{"id": ""}},
				Expect: Expectation{
					Status: []int{http.StatusBadRequest, http.StatusMethodNotAllowed},
					Checks: []Check{
						OnStatus(http.StatusBadRequest,
							HasKeys("", "message"),
							FieldMatches("message", regexp.MustCompile(`(?i)id|_id|obrigat[óo]ri`)),
							MatchesSchema("usuario.delete.error"),
						),
						TypicalJSONHeaders(),
					},
				},
			},
		},
	}
}
