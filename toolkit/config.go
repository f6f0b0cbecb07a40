package toolkit

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	TestTypeAPI = "api"
	TestTypeUI  = "ui"

	DefaultAPIBaseURL = "https://serverest.dev"
	DefaultUIBaseURL  = "https://front.serverest.dev"
)

// Config holds everything a run needs. It is resolved once per invocation.
type Config struct {
	TestType   string `json:"test_type"`
	BaseURL    string `json:"base_url"`
	APIBaseURL string `json:"api_base_url"`
	UIBaseURL  string `json:"ui_base_url"`

	Video               bool `json:"video"`
	ScreenshotOnFailure bool `json:"screenshot_on_failure"`

	RequestTimeout    time.Duration `json:"request_timeout"`
	RequestsPerSecond float64       `json:"requests_per_second"`

	LoginEmail    string `json:"login_email,omitempty"`
	LoginPassword string `json:"-"`
	LoginName     string `json:"login_name,omitempty"`

	ResultsDir  string `json:"results_dir"`
	ReportPath  string `json:"report_path"`
	FixturesDir string `json:"fixtures_dir,omitempty"`
	LogLevel    string `json:"log_level"`
}

// LoadEnvFile loads .env from the working directory. Values already present in
// the process environment are not overwritten.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				log.Debugf("toolkit.config: env file not found path=%s", p)
				continue
			}
			return fmt.Errorf("load env file %q: %w", p, err)
		}
		log.Debugf("toolkit.config: env file loaded path=%s", p)
	}
	return nil
}

// LoadConfig resolves configuration from the environment. testType overrides
// SERVEREST_TEST_TYPE when non-empty. The returned slice names the login keys
// that are missing for a UI run; it is always empty for API runs.
func LoadConfig(testType string) (Config, []string, error) {
	if strings.TrimSpace(testType) == "" {
		testType = getEnv("SERVEREST_TEST_TYPE", TestTypeAPI)
	}
	testType = strings.ToLower(strings.TrimSpace(testType))
	if testType != TestTypeAPI && testType != TestTypeUI {
		return Config{}, nil, fmt.Errorf("unknown test type %q (want api or ui)", testType)
	}

	cfg := Config{
		TestType:            testType,
		APIBaseURL:          getEnv("SERVEREST_API_BASE_URL", DefaultAPIBaseURL),
		UIBaseURL:           getEnv("SERVEREST_UI_BASE_URL", DefaultUIBaseURL),
		Video:               getEnvBool("SERVEREST_VIDEO", true),
		ScreenshotOnFailure: getEnvBool("SERVEREST_SCREENSHOT_ON_FAILURE", true),
		LoginEmail:          getEnv("SERVEREST_LOGIN_EMAIL", ""),
		LoginPassword:       getEnv("SERVEREST_LOGIN_PASSWORD", ""),
		LoginName:           getEnv("SERVEREST_LOGIN_NAME", ""),
		ResultsDir:          getEnv("SERVEREST_RESULTS_DIR", "allure-results"),
		ReportPath:          getEnv("SERVEREST_REPORT_PATH", "report.json"),
		FixturesDir:         getEnv("SERVEREST_FIXTURES_DIR", ""),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}

	timeout, err := time.ParseDuration(getEnv("SERVEREST_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, nil, fmt.Errorf("SERVEREST_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = timeout

	rps, err := strconv.ParseFloat(getEnv("SERVEREST_RPS", "5"), 64)
	if err != nil || rps < 0 {
		return Config{}, nil, fmt.Errorf("SERVEREST_RPS must be a non-negative number, got=%q", os.Getenv("SERVEREST_RPS"))
	}
	cfg.RequestsPerSecond = rps

	if testType == TestTypeAPI {
		cfg.BaseURL = cfg.APIBaseURL
		// API runs record no video unless explicitly asked to.
		if os.Getenv("SERVEREST_API_VIDEO") != "true" {
			cfg.Video = false
		}
	} else {
		cfg.BaseURL = cfg.UIBaseURL
	}
	if override := strings.TrimSpace(os.Getenv("SERVEREST_BASE_URL")); override != "" {
		cfg.BaseURL = override
	}
	log.Infof("toolkit.config: resolved test_type=%s base_url=%s video=%t", cfg.TestType, cfg.BaseURL, cfg.Video)

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}

	var missing []string
	if testType == TestTypeUI {
		if cfg.LoginEmail == "" {
			missing = append(missing, "SERVEREST_LOGIN_EMAIL")
		}
		if cfg.LoginPassword == "" {
			missing = append(missing, "SERVEREST_LOGIN_PASSWORD")
		}
	}
	if len(missing) > 0 {
		log.Warnf("toolkit.config: set in .env -> %s", strings.Join(missing, ", "))
	}

	return cfg, missing, nil
}

// Validate checks the fields a client cannot work without.
func (c Config) Validate() error {
	for name, value := range map[string]string{
		"base_url":     c.BaseURL,
		"api_base_url": c.APIBaseURL,
		"ui_base_url":  c.UIBaseURL,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("config.%s is empty", name)
		}
		if !isAbsoluteURL(value) {
			return fmt.Errorf("config.%s must be an absolute URL, got=%q", name, value)
		}
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("config.request_timeout must be positive, got=%s", c.RequestTimeout)
	}
	return nil
}

// DetectTestType infers the category of a spec from its path. An "api"
// directory anywhere in the path (either separator, relative or absolute)
// selects API; anything else, a "ui" directory included, is UI.
func DetectTestType(specPath string) string {
	p := "/" + strings.ReplaceAll(specPath, `\`, "/")
	switch {
	case strings.Contains(p, "/api/"):
		return TestTypeAPI
	case strings.Contains(p, "/ui/"):
		return TestTypeUI
	}
	return TestTypeUI
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return value
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		log.Warnf("toolkit.config: ignoring non-boolean %s=%q", key, value)
		return defaultVal
	}
	return b
}
