package reporter

import (
	"errors"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serverest/toolkit"
)

func jsonResponse(status int, body string) *Response {
	h := http.Header{}
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
	return newResponse(toolkit.Response{Status: status, Header: h, Body: []byte(body)}, nil)
}

func requireKind(t *testing.T, err error, kind string) {
	t.Helper()
	require.Error(t, err)
	var ae *AssertionError
	require.True(t, errors.As(err, &ae), "expected AssertionError, got %T: %v", err, err)
	assert.Equal(t, kind, ae.Kind)
}

func TestTypicalJSONHeaders(t *testing.T) {
	r := jsonResponse(200, `{}`)
	assert.NoError(t, TypicalJSONHeaders()(r))

	r.Header.Del("X-Content-Type-Options")
	requireKind(t, TypicalJSONHeaders()(r), FailureHeader)

	r = jsonResponse(200, `{}`)
	r.Header.Set("Strict-Transport-Security", "max-age=1")
	requireKind(t, TypicalJSONHeaders()(r), FailureHeader)

	r = jsonResponse(200, `{}`)
	r.Header.Set("Content-Type", "text/html")
	requireKind(t, JSONContentType()(r), FailureHeader)
}

func TestFieldChecks(t *testing.T) {
	r := jsonResponse(200, `{"quantidade":2,"usuarios":[{"nome":"Ana","administrador":"true"},{"nome":"Bia","administrador":"true"}]}`)

	assert.NoError(t, Field("quantidade", 2)(r))
	assert.NoError(t, Field("usuarios.1.nome", "Bia")(r))
	assert.NoError(t, Field("usuarios.0", map[string]any{"nome": "..."})(r))
	requireKind(t, Field("usuarios.0.nome", "Bia")(r), FailureContent)
	requireKind(t, Field("usuarios.5.nome", "Bia")(r), FailureContent)

	assert.NoError(t, FieldMatches("usuarios.0.administrador", regexp.MustCompile(`^(true|false)$`))(r))
	requireKind(t, FieldMatches("usuarios.0.nome", regexp.MustCompile(`^B`))(r), FailureContent)

	assert.NoError(t, FieldContains("usuarios.0.nome", "An")(r))
	requireKind(t, FieldContains("quantidade", "2")(r), FailureContent)

	assert.NoError(t, AtLeast("quantidade", 2)(r))
	assert.NoError(t, AtLeast("usuarios", 1)(r))
	requireKind(t, AtLeast("quantidade", 3)(r), FailureContent)

	assert.NoError(t, Len("usuarios", 2)(r))
	requireKind(t, Len("usuarios", 0)(r), FailureContent)

	assert.NoError(t, EachField("usuarios", "administrador", `"true"`, equals("true"))(r))
	requireKind(t, EachField("usuarios", "nome", `"Ana"`, equals("Ana"))(r), FailureContent)
}

func TestKeyChecks(t *testing.T) {
	r := jsonResponse(400, `{"nome":"a","email":"b"}`)
	assert.NoError(t, HasKeys("", "nome")(r))
	requireKind(t, HasKeys("", "nome", "password")(r), FailureContent)
	assert.NoError(t, ExactKeys("", "email", "nome")(r))
	requireKind(t, ExactKeys("", "nome")(r), FailureContent)
}

func TestChecksOnInvalidJSON(t *testing.T) {
	r := jsonResponse(200, `<html>`)
	requireKind(t, Field("message", "x")(r), FailureResponseParse)
}

func TestOnStatusAndAnyOf(t *testing.T) {
	r := jsonResponse(400, `{"message":"Usuário não encontrado"}`)

	assert.NoError(t, OnStatus(200, Field("message", "other"))(r))
	requireKind(t, OnStatus(400, Field("message", "other"))(r), FailureContent)

	assert.NoError(t, AnyOf(Field("id", "x"), Field("message", "Usuário não encontrado"))(r))
	err := AnyOf(Field("id", "x"), Field("message", "y"))(r)
	requireKind(t, err, FailureContent)
	assert.Contains(t, err.Error(), "none matched")
}

func TestMatchesSchema(t *testing.T) {
	fx := toolkit.Fixtures{Schemas: map[string][]byte{
		"msg": []byte(`{"type":"object","required":["message"],"properties":{"message":{"type":"string"}},"additionalProperties":false}`),
	}}
	schemas := NewSchemaSet(fx.Schema)
	ok := newResponse(toolkit.Response{Status: 200, Body: []byte(`{"message":"x"}`)}, schemas)
	assert.NoError(t, MatchesSchema("msg")(ok))

	extra := newResponse(toolkit.Response{Status: 200, Body: []byte(`{"message":"x","_id":"1"}`)}, schemas)
	requireKind(t, MatchesSchema("msg")(extra), FailureSchema)

	err := MatchesSchema("missing")(ok)
	require.ErrorContains(t, err, "unknown schema")
	assert.Contains(t, err.Error(), "have msg")
	var ae *AssertionError
	assert.False(t, errors.As(err, &ae))
}

func TestBearerJWT(t *testing.T) {
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "a@qa.com",
		"iat":   now.Unix(),
		"exp":   now.Add(10 * time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	r := jsonResponse(200, `{"authorization":"Bearer `+signed+`"}`)
	assert.NoError(t, BearerJWT("authorization", map[string]any{"email": "a@qa.com"})(r))
	requireKind(t, BearerJWT("authorization", map[string]any{"email": "b@qa.com"})(r), FailureContent)

	r = jsonResponse(200, `{"authorization":"`+signed+`"}`)
	requireKind(t, BearerJWT("authorization", nil)(r), FailureContent)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(-time.Minute).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)
	r = jsonResponse(200, `{"authorization":"Bearer `+expired+`"}`)
	requireKind(t, BearerJWT("authorization", nil)(r), FailureContent)
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"a": []any{map[string]any{"b": "c"}}}
	v, ok := lookup(doc, "a.0.b")
	assert.True(t, ok)
	assert.Equal(t, "c", v)

	_, ok = lookup(doc, "a.x")
	assert.False(t, ok)

	v, ok = lookup(doc, "")
	assert.True(t, ok)
	assert.Equal(t, doc, v)
}
