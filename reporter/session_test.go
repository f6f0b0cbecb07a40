package reporter

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverest/toolkit"
)

func seedFixtures() toolkit.Fixtures {
	user := func(name, email string) toolkit.User {
		return toolkit.User{Nome: name, Email: email, Password: "teste123", Administrador: "false"}
	}
	return toolkit.Fixtures{TestUsers: map[string]toolkit.User{
		"first":  user("Primeiro QA", "primeiro.seed@qa.com.br"),
		"second": user("Segundo QA", "segundo.seed@qa.com.br"),
		"third":  user("Terceiro QA", "terceiro.seed@qa.com.br"),
		"fourth": user("Quarto QA", "quarto.seed@qa.com.br"),
		"broken": user("Quebrado QA", "email-invalido"),
	}}
}

func TestSeedContinuesPastFailedUser(t *testing.T) {
	cfg := stubConfig(t)
	s := NewSession(cfg, toolkit.NewClient(cfg), seedFixtures())

	err := s.Seed(context.Background(), "broken", "first", "second", "third", "fourth", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed broken")
	assert.Contains(t, err.Error(), "seed missing")
	assert.NotContains(t, err.Error(), "seed first")

	for _, key := range []string{"first", "second", "third", "fourth"} {
		u, ok := s.User(key)
		require.True(t, ok, key)
		assert.Regexp(t, `^[0-9A-Za-z]{16}$`, u.ID, key)
	}
	_, ok := s.User("broken")
	assert.False(t, ok)
}

func TestSeedReusesRegisteredEmail(t *testing.T) {
	cfg := stubConfig(t)
	client := toolkit.NewClient(cfg)

	first := NewSession(cfg, client, seedFixtures())
	require.NoError(t, first.Seed(context.Background(), "first"))
	again := NewSession(cfg, client, seedFixtures())
	require.NoError(t, again.Seed(context.Background(), "first"))

	a, _ := first.User("first")
	b, _ := again.User("first")
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "primeiro.seed@qa.com.br", b.Email)
}

func TestRunSkipsOnlyCasesNeedingUnseededUser(t *testing.T) {
	cfg := stubConfig(t)
	s := NewSession(cfg, toolkit.NewClient(cfg), seedFixtures())

	byID := func(key string) func(context.Context, *Session) (toolkit.Request, Expectation, error) {
		return func(_ context.Context, s *Session) (toolkit.Request, Expectation, error) {
			u, err := seeded(s, key)
			if err != nil {
				return toolkit.Request{}, Expectation{}, err
			}
			return toolkit.Request{PathParams: map[string]string{"id": u.ID}},
				Expectation{Status: []int{http.StatusOK}, Content: map[string]any{"email": u.Email}}, nil
		}
	}
	suite := Suite{
		Key: "seeded", Name: "seeded lookups", Spec: "api/seeded",
		Method: http.MethodGet, Endpoint: "/usuarios/{id}",
		Seed: []string{"first", "broken"},
		Cases: []Case{
			{ID: "S-1", Build: byID("first")},
			{ID: "S-2", Build: byID("broken")},
			{ID: "S-3", Request: toolkit.Request{PathParams: map[string]string{"id": "0000000000000000"}},
				Expect: Expectation{Status: []int{http.StatusBadRequest}, Content: map[string]any{"message": "Usuário não encontrado"}}},
		},
	}

	rep := Run(context.Background(), s, []Suite{suite}, nil)
	assert.Equal(t, toolkit.RunSummary{Total: 3, Passed: 2, Skipped: 1}, rep.Summary)
	require.Len(t, rep.Results, 3)
	assert.True(t, rep.Results[1].Skipped)
	assert.Contains(t, rep.Results[1].Why, "broken")
}

func TestCleanupDeletesCreatedUsers(t *testing.T) {
	cfg := stubConfig(t)
	client := toolkit.NewClient(cfg)
	s := NewSession(cfg, client, seedFixtures())
	ctx := context.Background()

	require.NoError(t, s.Seed(ctx, "first"))
	id, err := s.CreateUser(ctx, map[string]any{
		"nome": "Temporario QA", "email": toolkit.UniqueEmail("cleanup"), "password": "teste123", "administrador": "false",
	})
	require.NoError(t, err)

	require.NoError(t, s.Cleanup(ctx))
	_, status, err := client.GetUser(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)

	seededUser, _ := s.User("first")
	_, status, err = client.GetUser(ctx, seededUser.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)

	assert.NoError(t, s.Cleanup(ctx))
}
