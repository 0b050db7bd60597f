package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"calmchat/internal/util"
)

// CommandRunner executes an external tool and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// OCREngine recognizes the text of one rasterized PDF page.
type OCREngine interface {
	RecognizePage(ctx context.Context, pdfPath string, page int) (string, error)
}

const (
	rasterTool = "pdftoppm"
	ocrTool    = "tesseract"
)

// TesseractOCR renders a page with pdftoppm and recognizes it with tesseract.
type TesseractOCR struct {
	runner    CommandRunner
	lookPath  func(string) (string, error)
	languages string
	dpi       int
}

func NewTesseractOCR(languages string, dpi int) *TesseractOCR {
	return NewTesseractOCRWithRunner(execRunner{}, languages, dpi)
}

func NewTesseractOCRWithRunner(runner CommandRunner, languages string, dpi int) *TesseractOCR {
	if strings.TrimSpace(languages) == "" {
		languages = "por+eng"
	}
	if dpi <= 0 {
		dpi = 144
	}
	return &TesseractOCR{runner: runner, lookPath: exec.LookPath, languages: languages, dpi: dpi}
}

// CheckAvailable reports util.ErrOCRUnavailable when either tool is missing from PATH.
func (o *TesseractOCR) CheckAvailable() error {
	for _, tool := range []string{rasterTool, ocrTool} {
		if _, err := o.lookPath(tool); err != nil {
			return fmt.Errorf("%w: %s not found in PATH (%s)", util.ErrOCRUnavailable, tool, InstallInstructions())
		}
	}
	return nil
}

func (o *TesseractOCR) RecognizePage(ctx context.Context, pdfPath string, page int) (string, error) {
	dir, err := os.MkdirTemp("", "calmchat-ocr-*")
	if err != nil {
		return "", fmt.Errorf("create ocr workdir: %w", err)
	}
	defer os.RemoveAll(dir)

	prefix := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	if _, err := o.runner.Run(ctx, rasterTool, "-f", n, "-l", n, "-r", strconv.Itoa(o.dpi), "-png", "-singlefile", pdfPath, prefix); err != nil {
		return "", fmt.Errorf("rasterize page %d: %w", page, err)
	}
	out, err := o.runner.Run(ctx, ocrTool, prefix+".png", "stdout", "-l", o.languages)
	if err != nil {
		return "", fmt.Errorf("recognize page %d: %w", page, err)
	}
	return string(out), nil
}

func InstallInstructions() string {
	return "install poppler-utils and tesseract-ocr (with the por and eng language packs)"
}
