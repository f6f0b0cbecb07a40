package reporter

import (
	"context"
	"net/http"

	"serverest/toolkit"
)

const (
	msgLoggedIn   = "Login realizado com sucesso"
	msgBadLogin   = "Email e/ou senha inválidos"
	loginPassword = "teste123"
)

func loginSuite() Suite {
	loginOK := func(email string) Expectation {
		return Expectation{
			Status:  []int{http.StatusOK},
			Content: map[string]any{"message": msgLoggedIn, "authorization": "..."},
			Checks: []Check{
				TypicalJSONHeaders(),
				MatchesSchema("login.success"),
				BearerJWT("authorization", map[string]any{"email": email}),
			},
		}
	}

	return Suite{
		Key:      "login",
		Name:     "API /login :: authenticate",
		Spec:     "api/5-post.login",
		Method:   http.MethodPost,
		Endpoint: "/login",
		Cases: []Case{
			{
				ID: "LG-001", Title: "[401] unknown credentials", Tags: negative,
				Build: func(context.Context, *Session) (toolkit.Request, Expectation, error) {
					body := map[string]any{"email": toolkit.UniqueEmail("nobody"), "password": "senha_errada"}
					return toolkit.Request{Body: body}, Expectation{
						Status:  []int{http.StatusUnauthorized},
						Content: map[string]any{"message": msgBadLogin},
						Checks:  []Check{TypicalJSONHeaders()},
					}, nil
				},
			},
			{
				ID: "LG-002", Title: "[400] password missing", Tags: negative,
				Request: toolkit.Request{Body: map[string]any{"email": "fulano@qa.com"}},
				Expect: Expectation{
					Status:  []int{http.StatusBadRequest},
					Content: map[string]any{"password": "password é obrigatório"},
					Checks:  []Check{TypicalJSONHeaders()},
				},
			},
			{
				ID: "LG-003", Title: "[400] malformed e-mail", Tags: negative,
				Request: toolkit.Request{Body: map[string]any{"email": "email-invalido", "password": loginPassword}},
				Expect: Expectation{
					Status:  []int{http.StatusBadRequest},
					Content: map[string]any{"email": msgInvalidMail},
					Checks:  []Check{TypicalJSONHeaders()},
				},
			},
			{
				ID: "LG-004", Title: "[200] login with a freshly registered user", Tags: positiveSmoke,
				Build: func(ctx context.Context, s *Session) (toolkit.Request, Expectation, error) {
					email := toolkit.UniqueEmail("login")
					payload, err := s.CreatePayload("CT016_validAdminFalse", map[string]any{"email": email, "password": loginPassword})
					if err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					if _, err := s.CreateUser(ctx, payload); err != nil {
						return toolkit.Request{}, Expectation{}, err
					}
					return toolkit.Request{Body: map[string]any{"email": email, "password": loginPassword}}, loginOK(email), nil
				},
			},
			{
				ID: "LG-005", Title: "[200] login with the configured account", Tags: positive,
				Build: func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
					if s.Config.LoginEmail == "" || s.Config.LoginPassword == "" {
						return toolkit.Request{}, Expectation{}, skipf("SERVEREST_LOGIN_EMAIL / SERVEREST_LOGIN_PASSWORD not set")
					}
					body := map[string]any{"email": s.Config.LoginEmail, "password": s.Config.LoginPassword}
					return toolkit.Request{Body: body}, loginOK(s.Config.LoginEmail), nil
				},
			},
		},
	}
}
