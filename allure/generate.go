package allure

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

// CLIGenerator runs the allure command line tool.
type CLIGenerator struct {
	Bin    string // defaults to "allure"
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

func (g CLIGenerator) Generate(ctx context.Context, resultsDir, outputDir string) error {
	bin := g.Bin
	if bin == "" {
		bin = "allure"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("allure binary %q not found: %w", bin, err)
	}

	cmd := exec.CommandContext(ctx, bin, "generate", resultsDir, "--clean", "-o", outputDir)
	cmd.Dir = g.Dir
	cmd.Stdout = g.Stdout
	cmd.Stderr = g.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	log.Debugf("allure.generate: running bin=%s results=%s output=%s", bin, resultsDir, outputDir)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s generate: %w", bin, err)
	}
	return nil
}
