package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serverest/allure"
	"serverest/reporter"
	"serverest/stub"
	"serverest/toolkit"
)

var rootCommand = &cobra.Command{
	Use:           "serverest",
	Short:         "ServeRest contract runner and Allure report splitter",
	Long:          "Runs the ServeRest /usuarios and /login API suites, records Allure results, and splits a shared results directory into per-category HTML reports.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := toolkit.LoadEnvFile(envFile); err != nil {
			return err
		}
		setupLogging(os.Getenv("LOG_LEVEL"))
		return nil
	},
}

var envFile string

// -- run

var runOpts struct {
	suites     []string
	tags       []string
	baseURL    string
	resultsDir string
	report     string
}

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Runs the API suites against a ServeRest deployment",
	Long:  "Runs the selected suites, writes one Allure result per case into the results directory and the run summary to report.json. Exits 1 when any case fails.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := toolkit.LoadConfig(toolkit.TestTypeAPI)
		if err != nil {
			return err
		}
		if runOpts.baseURL != "" {
			cfg.BaseURL = runOpts.baseURL
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("--base-url: %w", err)
			}
		}
		log.Infof("cli.run: starting base_url=%s", cfg.BaseURL)

		rep, err := reporter.RunAPI(cmd.Context(), cfg, reporter.Options{
			Suites:     runOpts.suites,
			Tags:       runOpts.tags,
			ResultsDir: runOpts.resultsDir,
			ReportPath: runOpts.report,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "total=%d passed=%d failed=%d skipped=%d\n",
			rep.Summary.Total, rep.Summary.Passed, rep.Summary.Failed, rep.Summary.Skipped)
		if rep.Summary.Failed > 0 {
			return fmt.Errorf("%d of %d cases failed", rep.Summary.Failed, rep.Summary.Total)
		}
		log.Infof("cli.run: completed")
		return nil
	},
}

// -- report

var reportOpts struct {
	resultsDir string
	output     string
	window     time.Duration
	limit      int
	allureBin  string
}

var reportCommand = &cobra.Command{
	Use:       "report [api|ui]",
	Short:     "Generates the Allure report of one test category",
	Long:      "Selects the recent results of the given category from the shared results directory, copies them to a temporary directory and runs `allure generate` on it. Finding no results is not an error.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"api", "ui"},
	RunE: func(cmd *cobra.Command, args []string) error {
		category, err := allure.ParseCategory(args[0])
		if err != nil {
			return err
		}
		output := reportOpts.output
		if output == "" {
			output = category.ReportDir()
		}
		resultsDir := strings.TrimSpace(reportOpts.resultsDir)
		if resultsDir == "" {
			cfg, _, err := toolkit.LoadConfig(category.Lower())
			if err != nil {
				return err
			}
			resultsDir = cfg.ResultsDir
		}

		splitter := allure.NewSplitter(resultsDir, allure.CLIGenerator{
			Bin:    reportOpts.allureBin,
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
		})
		splitter.Window = reportOpts.window
		splitter.Limit = reportOpts.limit

		log.Infof("cli.report: generating category=%s results_dir=%s output=%s", category, resultsDir, output)
		sum, err := splitter.Split(cmd.Context(), category, output)
		if err != nil {
			return err
		}
		if sum.Generated {
			fmt.Fprintf(cmd.OutOrStdout(), "%s report generated in %s (%d results)\n", category, sum.OutputDir, sum.Kept)
		}
		return nil
	},
}

// -- stub

var stubAddr string

var stubCommand = &cobra.Command{
	Use:   "stub",
	Short: "Serves an in-memory ServeRest double",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := &http.Server{
			Addr:         stubAddr,
			Handler:      stub.New(os.Getenv("SERVEREST_STUB_SECRET")).Router(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			<-cmd.Context().Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warnf("cli.stub: shutdown failed error=%v", err)
			}
		}()

		log.Infof("cli.stub: listening addr=%s", stubAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Infof("cli.stub: stopped")
		return nil
	},
}

// -- config

var configOpts struct {
	testType   string
	spec       string
	checkLogin bool
}

var configCommand = &cobra.Command{
	Use:   "config",
	Short: "Prints the resolved configuration",
	Long:  "Prints the configuration for a test type. Without --type, a --spec path picks it: specs under an api directory resolve the API base URL, anything else the UI one.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		testType := configOpts.testType
		if testType == "" && configOpts.spec != "" {
			testType = toolkit.DetectTestType(configOpts.spec)
			log.Debugf("cli.config: detected test_type=%s spec=%s", testType, configOpts.spec)
		}
		cfg, missing, err := toolkit.LoadConfig(testType)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		if len(missing) > 0 {
			fmt.Fprintf(cmd.ErrOrStderr(), "missing: %s\n", strings.Join(missing, ", "))
		}
		if configOpts.checkLogin {
			return checkLogin(cmd, cfg)
		}
		return nil
	},
}

// checkLogin signs in with the configured account against the API base URL,
// where /login lives for both test types.
func checkLogin(cmd *cobra.Command, cfg toolkit.Config) error {
	if cfg.LoginEmail == "" || cfg.LoginPassword == "" {
		return fmt.Errorf("check login: SERVEREST_LOGIN_EMAIL and SERVEREST_LOGIN_PASSWORD must be set")
	}
	apiCfg := cfg
	apiCfg.BaseURL = cfg.APIBaseURL
	lr, status, err := toolkit.NewClient(apiCfg).Login(cmd.Context(), cfg.LoginEmail, cfg.LoginPassword)
	if err != nil {
		return fmt.Errorf("check login: %w", err)
	}
	if status != http.StatusOK || lr.Authorization == "" {
		return fmt.Errorf("check login: status=%d message=%q", status, lr.Message)
	}
	log.Infof("cli.config: login ok email=%s", cfg.LoginEmail)
	fmt.Fprintf(cmd.OutOrStdout(), "login ok for %s\n", cfg.LoginEmail)
	return nil
}

func init() {
	rootCommand.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the command runs")

	runCommand.Flags().StringSliceVar(&runOpts.suites, "suite", nil, "suites to run (create, list, get, delete, login); all when empty")
	runCommand.Flags().StringSliceVar(&runOpts.tags, "tag", nil, "only run cases with one of these tags (positive, negative, smoke)")
	runCommand.Flags().StringVar(&runOpts.baseURL, "base-url", "", "overrides SERVEREST_BASE_URL")
	runCommand.Flags().StringVar(&runOpts.resultsDir, "results-dir", "", "Allure results directory (default SERVEREST_RESULTS_DIR)")
	runCommand.Flags().StringVar(&runOpts.report, "report", "", "run report path (default SERVEREST_REPORT_PATH)")

	reportCommand.Flags().StringVar(&reportOpts.resultsDir, "results-dir", "", "shared Allure results directory (default SERVEREST_RESULTS_DIR)")
	reportCommand.Flags().StringVarP(&reportOpts.output, "output", "o", "", "report output directory (default allure-report-<category>)")
	reportCommand.Flags().DurationVar(&reportOpts.window, "window", allure.DefaultWindow, "only keep results started within this window")
	reportCommand.Flags().IntVar(&reportOpts.limit, "limit", allure.DefaultLimit, "maximum number of results in the report")
	reportCommand.Flags().StringVar(&reportOpts.allureBin, "allure-bin", "allure", "allure command line binary")

	stubCommand.Flags().StringVar(&stubAddr, "addr", stub.DefaultAddr, "listen address")

	configCommand.Flags().StringVar(&configOpts.testType, "type", "", "test type (api or ui); default SERVEREST_TEST_TYPE")
	configCommand.Flags().BoolVar(&configOpts.checkLogin, "check-login", false, "sign in with SERVEREST_LOGIN_EMAIL / SERVEREST_LOGIN_PASSWORD against the API")
	configCommand.Flags().StringVar(&configOpts.spec, "spec", "", "spec path whose directory selects the test type when --type is empty")

	rootCommand.AddCommand(runCommand, reportCommand, stubCommand, configCommand)
}

func setupLogging(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// Execute runs the root command and exits 1 on any error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Debugf("cli.execute: running root command")
	if err := rootCommand.ExecuteContext(ctx); err != nil {
		log.Errorf("cli.execute: command failed error=%v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
