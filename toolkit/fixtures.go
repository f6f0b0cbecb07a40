package toolkit

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

//go:embed fixtures
var embeddedFixtures embed.FS

const (
	createCasesFile = "usuarios.create.cases.json"
	testUsersFile   = "usuarios.test.data.json"
	schemaDir       = "schema"
	schemaSuffix    = ".schema.json"

	longNameMarker = "<LONG_260>"
)

// Fixtures is the test data shared by every suite.
type Fixtures struct {
	CreateCases map[string]map[string]any
	TestUsers   map[string]User
	Schemas     map[string][]byte
}

// LoadFixtures reads fixtures from dir, or from the embedded copy when dir is empty.
func LoadFixtures(dir string) (Fixtures, error) {
	var fsys fs.FS
	if strings.TrimSpace(dir) == "" {
		sub, err := fs.Sub(embeddedFixtures, "fixtures")
		if err != nil {
			return Fixtures{}, err
		}
		fsys = sub
	} else {
		fsys = os.DirFS(dir)
	}
	return loadFixturesFS(fsys)
}

func loadFixturesFS(fsys fs.FS) (Fixtures, error) {
	fx := Fixtures{Schemas: map[string][]byte{}}

	if err := readJSONFile(fsys, createCasesFile, &fx.CreateCases); err != nil {
		return Fixtures{}, err
	}
	if err := readJSONFile(fsys, testUsersFile, &fx.TestUsers); err != nil {
		return Fixtures{}, err
	}

	entries, err := fs.ReadDir(fsys, schemaDir)
	if err != nil {
		return Fixtures{}, fmt.Errorf("read schema dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), schemaSuffix) {
			continue
		}
		b, err := fs.ReadFile(fsys, path.Join(schemaDir, e.Name()))
		if err != nil {
			return Fixtures{}, fmt.Errorf("read schema %q: %w", e.Name(), err)
		}
		fx.Schemas[strings.TrimSuffix(e.Name(), schemaSuffix)] = b
	}
	log.Debugf("toolkit.fixtures: loaded create_cases=%d test_users=%d schemas=%d", len(fx.CreateCases), len(fx.TestUsers), len(fx.Schemas))
	return fx, nil
}

func readJSONFile(fsys fs.FS, name string, out any) error {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read fixture %q: %w", name, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode fixture %q: %w", name, err)
	}
	return nil
}

// CreateCase returns a copy of the named create payload with the long-name
// marker expanded.
func (f Fixtures) CreateCase(key string) (map[string]any, error) {
	src, ok := f.CreateCases[key]
	if !ok {
		return nil, fmt.Errorf("unknown create fixture %q", key)
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	if name, ok := out["nome"].(string); ok && strings.Contains(name, longNameMarker) {
		out["nome"] = strings.Repeat("N", 260)
	}
	return out, nil
}

func (f Fixtures) TestUser(key string) (User, error) {
	u, ok := f.TestUsers[key]
	if !ok {
		return User{}, fmt.Errorf("unknown test user %q", key)
	}
	return u, nil
}

func (f Fixtures) Schema(name string) ([]byte, error) {
	b, ok := f.Schemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (have %s)", name, strings.Join(f.SchemaNames(), ", "))
	}
	return b, nil
}

func (f Fixtures) SchemaNames() []string {
	names := make([]string, 0, len(f.Schemas))
	for n := range f.Schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// UniqueEmail returns an address that does not collide across calls, even
// within the same millisecond.
func UniqueEmail(prefix string) string {
	if prefix == "" {
		prefix = "user"
	}
	return fmt.Sprintf("%s_%d_%s@example.com", prefix, time.Now().UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
