// Package stub is an in-memory stand-in for the ServeRest /usuarios and
// /login endpoints. It follows the public contract closely enough for the
// suites to pass against it, which makes offline runs and tests possible.
package stub

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"serverest/toolkit"
)

const (
	DefaultAddr   = ":3000"
	tokenLifetime = 600 * time.Second

	msgRegistered = "Cadastro realizado com sucesso"
	msgEmailInUse = "Este email já está sendo usado"
	msgNotFound   = "Usuário não encontrado"
	msgDeleted    = "Registro excluído com sucesso"
	msgNoneDelete = "Nenhum registro excluído"
	msgIDFormat   = "id deve ter exatamente 16 caracteres alfanuméricos"
	msgLoggedIn   = "Login realizado com sucesso"
	msgBadLogin   = "Email e/ou senha inválidos"
	msgNoRoute    = "Não é possível realizar %s em %s. Acesse https://serverest.dev para ver as rotas disponíveis e como utilizá-las."
)

// Server keeps users in insertion order. It is safe for concurrent use.
type Server struct {
	secret []byte
	now    func() time.Time

	mu    sync.RWMutex
	users map[string]toolkit.User
	order []string
}

// New returns an empty server. An empty secret gets a random one.
func New(secret string) *Server {
	if secret == "" {
		secret = uuid.NewString()
	}
	return &Server{
		secret: []byte(secret),
		now:    time.Now,
		users:  map[string]toolkit.User{},
	}
}

// Router wires the ServeRest routes. Unknown routes and methods answer 405
// with the ServeRest message.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(securityHeaders)
	r.HandleFunc("/usuarios", s.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/usuarios", s.createUser).Methods(http.MethodPost)
	r.HandleFunc("/usuarios/{id}", s.getUser).Methods(http.MethodGet)
	r.HandleFunc("/usuarios/{id}", s.deleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/login", s.login).Methods(http.MethodPost)

	// mux skips middleware for these two.
	noRoute := securityHeaders(http.HandlerFunc(notAllowed))
	r.NotFoundHandler = noRoute
	r.MethodNotAllowedHandler = noRoute
	return r
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		log.Debugf("stub.request: method=%s path=%s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func notAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{
		"message": fmt.Sprintf(msgNoRoute, r.Method, r.URL.Path),
	})
}

// -- /usuarios

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || len(bytes.TrimSpace(body)) > 0 {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, "<!DOCTYPE html><html><body><pre>Bad Request</pre></body></html>")
		return
	}

	q := r.URL.Query()
	if errs := validateQuery(q); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	s.mu.RLock()
	out := make([]toolkit.User, 0, len(s.order))
	for _, id := range s.order {
		u := s.users[id]
		if matchesFilter(u, q) {
			out = append(out, u)
		}
	}
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, toolkit.UserList{Quantidade: len(out), Usuarios: out})
}

func matchesFilter(u toolkit.User, q map[string][]string) bool {
	fields := map[string]string{
		"_id":           u.ID,
		"nome":          u.Nome,
		"email":         u.Email,
		"password":      u.Password,
		"administrador": u.Administrador,
	}
	for k, vs := range q {
		if fields[k] != vs[0] {
			return false
		}
	}
	return true
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}
	if errs := validateBody(body, userRules); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	u := toolkit.User{
		Nome:          body["nome"].(string),
		Email:         body["email"].(string),
		Password:      body["password"].(string),
		Administrador: body["administrador"].(string),
	}

	s.mu.Lock()
	if _, taken := s.findByEmail(u.Email); taken {
		s.mu.Unlock()
		writeJSON(w, http.StatusBadRequest, toolkit.MessageResponse{Message: msgEmailInUse})
		return
	}
	u.ID = newID()
	s.users[u.ID] = u
	s.order = append(s.order, u.ID)
	s.mu.Unlock()

	log.Debugf("stub.create_user: created id=%s email=%s", u.ID, u.Email)
	writeJSON(w, http.StatusCreated, toolkit.MessageResponse{Message: msgRegistered, ID: u.ID})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validID(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"id": msgIDFormat})
		return
	}
	s.mu.RLock()
	u, ok := s.users[id]
	s.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusBadRequest, toolkit.MessageResponse{Message: msgNotFound})
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !validID(id) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"id": msgIDFormat})
		return
	}

	s.mu.Lock()
	_, ok := s.users[id]
	if ok {
		delete(s.users, id)
		for i, v := range s.order {
			if v == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, toolkit.MessageResponse{Message: msgNoneDelete})
		return
	}
	writeJSON(w, http.StatusOK, toolkit.MessageResponse{Message: msgDeleted})
}

// -- /login

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	body, ok := readObject(w, r)
	if !ok {
		return
	}
	if errs := validateBody(body, loginRules); errs != nil {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	email, password := body["email"].(string), body["password"].(string)

	s.mu.RLock()
	u, found := s.findByEmail(email)
	s.mu.RUnlock()
	if !found || u.Password != password {
		writeJSON(w, http.StatusUnauthorized, toolkit.MessageResponse{Message: msgBadLogin})
		return
	}

	token, err := s.issueToken(email, password)
	if err != nil {
		log.Errorf("stub.login: sign failed email=%s error=%v", email, err)
		writeJSON(w, http.StatusInternalServerError, toolkit.MessageResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toolkit.LoginResponse{Message: msgLoggedIn, Authorization: "Bearer " + token})
}

func (s *Server) issueToken(email, password string) (string, error) {
	iat := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email":    email,
		"password": password,
		"iat":      iat.Unix(),
		"exp":      iat.Add(tokenLifetime).Unix(),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// ---------- helpers

// findByEmail expects s.mu to be held.
func (s *Server) findByEmail(email string) (toolkit.User, bool) {
	for _, id := range s.order {
		if u := s.users[id]; u.Email == email {
			return u, true
		}
	}
	return toolkit.User{}, false
}

// newID returns 16 lowercase hex characters.
func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func readObject(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	raw, err := io.ReadAll(r.Body)
	if err == nil && len(bytes.TrimSpace(raw)) > 0 {
		err = json.Unmarshal(raw, &body)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, toolkit.MessageResponse{Message: "Adicione aspas em todos os valores. Para mais informações acesse a issue https://github.com/ServeRest/ServeRest/issues/225"})
		return nil, false
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("stub.write_json: marshal failed error=%v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
