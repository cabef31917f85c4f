package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrNotInstalled is returned when the LibreOffice binary cannot be found.
var ErrNotInstalled = errors.New("libreoffice not found in PATH")

// LibreOffice converts legacy spreadsheets (.xls, .ods) to .xlsx using a
// headless LibreOffice process per conversion.
type LibreOffice struct {
	binary  string
	timeout time.Duration
}

// NewLibreOffice creates a converter. An empty binary defaults to "libreoffice".
func NewLibreOffice(binary string, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "libreoffice"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &LibreOffice{binary: binary, timeout: timeout}
}

// IsAvailable checks if the LibreOffice binary is on PATH.
func (l *LibreOffice) IsAvailable() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// ToXLSX converts inputPath into outputDir and returns the produced file.
func (l *LibreOffice) ToXLSX(ctx context.Context, inputPath, outputDir string) (string, error) {
	if !l.IsAvailable() {
		return "", ErrNotInstalled
	}
	if err := validateInput(inputPath); err != nil {
		return "", fmt.Errorf("input validation failed: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	// A private profile lets several conversions run side by side.
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("libreoffice_profile_%s", uuid.NewString()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create profile directory: %w", err)
	}
	defer os.RemoveAll(profileDir)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, l.binary,
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--convert-to", "xlsx",
		"--outdir", outputDir,
		inputPath,
	)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("conversion timeout after %v", l.timeout)
		}
		return "", fmt.Errorf("conversion failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	output := ExpectedOutputPath(inputPath, outputDir)
	if _, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("output file not created: %w", err)
	}
	log.Info().Str("input", inputPath).Str("output", output).Dur("duration", time.Since(start)).Msg("spreadsheet converted")
	return output, nil
}

// ExpectedOutputPath is where LibreOffice writes the converted file.
func ExpectedOutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base))+".xlsx")
}

func validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}
	return nil
}
