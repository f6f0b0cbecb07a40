package reporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"serverest/toolkit"
)

const (
	msgEmailInUse = "Este email já está sendo usado"
	seedParallel  = 4
)

// Session is the state shared by the suites of one run: the client, the
// fixtures and the users seeded so far.
type Session struct {
	Config   toolkit.Config
	Client   *toolkit.Client
	Fixtures toolkit.Fixtures
	Schemas  *SchemaSet

	mu      sync.Mutex
	users   map[string]toolkit.User
	created []string
}

func NewSession(cfg toolkit.Config, client *toolkit.Client, fx toolkit.Fixtures) *Session {
	return &Session{
		Config:   cfg,
		Client:   client,
		Fixtures: fx,
		Schemas:  NewSchemaSet(fx.Schema),
		users:    map[string]toolkit.User{},
	}
}

// Seed registers the named fixture users. A user whose e-mail is already
// registered is looked up instead, so seeding is safe to repeat. Users are
// seeded independently: one failure neither stops nor cancels the others, and
// the returned error joins every failed key.
func (s *Session) Seed(ctx context.Context, keys ...string) error {
	var (
		g     errgroup.Group
		errMu sync.Mutex
		errs  []error
	)
	g.SetLimit(seedParallel)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			u, err := s.seedOne(ctx, key)
			if err != nil {
				log.Warnf("reporter.session: seed failed key=%s error=%v", key, err)
				errMu.Lock()
				errs = append(errs, fmt.Errorf("seed %s: %w", key, err))
				errMu.Unlock()
				return nil
			}
			s.mu.Lock()
			s.users[key] = u
			s.mu.Unlock()
			log.Debugf("reporter.session: seeded key=%s id=%s", key, u.ID)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (s *Session) seedOne(ctx context.Context, key string) (toolkit.User, error) {
	u, err := s.Fixtures.TestUser(key)
	if err != nil {
		return toolkit.User{}, err
	}
	msg, status, err := s.Client.CreateUser(ctx, u)
	if err != nil {
		return toolkit.User{}, err
	}
	switch {
	case status == http.StatusCreated:
		u.ID = msg.ID
		return u, nil
	case status == http.StatusBadRequest && msg.Message == msgEmailInUse:
		list, err := s.Client.ListUsers(ctx, url.Values{"email": {u.Email}})
		if err != nil {
			return toolkit.User{}, err
		}
		if len(list.Usuarios) == 0 {
			return toolkit.User{}, fmt.Errorf("email %s reported in use but not listed", u.Email)
		}
		// The listing is filtered server side; confirm the id resolves.
		got, status, err := s.Client.GetUser(ctx, list.Usuarios[0].ID)
		if err != nil {
			return toolkit.User{}, err
		}
		if status != http.StatusOK {
			return toolkit.User{}, fmt.Errorf("listed id %s not found (status=%d)", list.Usuarios[0].ID, status)
		}
		return got, nil
	}
	return toolkit.User{}, fmt.Errorf("unexpected status=%d message=%q", status, msg.Message)
}

// User returns a seeded user by fixture key.
func (s *Session) User(key string) (toolkit.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[key]
	return u, ok
}

// CreateUser registers payload and returns the new id. Anything but 201 is an error.
func (s *Session) CreateUser(ctx context.Context, payload any) (string, error) {
	msg, status, err := s.Client.CreateUser(ctx, payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create user: status=%d message=%q", status, msg.Message)
	}
	s.mu.Lock()
	s.created = append(s.created, msg.ID)
	s.mu.Unlock()
	return msg.ID, nil
}

// Cleanup deletes the users registered through CreateUser during the run.
// Seeded fixture users are kept so later runs can look them up.
func (s *Session) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	ids := s.created
	s.created = nil
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		msg, status, err := s.Client.DeleteUser(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		if status != http.StatusOK {
			errs = append(errs, fmt.Errorf("delete %s: status=%d message=%q", id, status, msg.Message))
		}
	}
	log.Debugf("reporter.session: cleanup deleted=%d failed=%d", len(ids)-len(errs), len(errs))
	return errors.Join(errs...)
}

// CreatePayload returns the named create fixture with overrides applied.
func (s *Session) CreatePayload(key string, overrides map[string]any) (map[string]any, error) {
	p, err := s.Fixtures.CreateCase(key)
	if err != nil {
		return nil, err
	}
	for k, v := range overrides {
		p[k] = v
	}
	return p, nil
}
