package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"calmchat/internal/app"
	"calmchat/internal/config"
	"calmchat/internal/extract"
	"calmchat/internal/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource []string

func (s staticSource) NumPages() int { return len(s) }

func (s staticSource) PageText(page int) (string, error) { return s[page-1], nil }

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type testEnv struct {
	app     *app.App
	lastCfg config.Config
}

func setupTestApp(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("CALMCHAT_CONFIG", "")

	cfg := config.Default()
	cfg.StoreBackend = "memory"
	cfg.SessionStore = "memory"
	cfg.EmbedDim = 24
	cfg.EmbedRatePerSecond = 0
	cfg.OCREnabled = false
	cfg.DataInRoot = t.TempDir()
	cfg.DataOutRoot = t.TempDir()
	cfg.ExportDir = filepath.Join(t.TempDir(), "exports")

	page := strings.Repeat("A exposição gradual ajuda a reduzir a ansiedade em situações sociais. ", 20)
	ext := extract.NewWithOpener(extract.Options{}, func(string) (extract.PageSource, io.Closer, error) {
		return staticSource{page, page}, nopCloser{}, nil
	})
	a, err := app.New(context.Background(), cfg, app.WithExtractor(ext))
	require.NoError(t, err)

	env := &testEnv{app: a}
	prev := newApp
	newApp = func(_ context.Context, cfg config.Config, _ ...app.Option) (*app.App, error) {
		env.lastCfg = cfg
		return a, nil
	}
	t.Cleanup(func() {
		newApp = prev
		a.Close()
		resetFlags(rootCmd)
		logger.SetOutput(os.Stderr)
		logger.SetVerbose(false)
	})
	return env
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

func addPDF(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644))
}

func sessionFrom(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if id, ok := strings.CutPrefix(line, "Session: "); ok {
			return strings.TrimSpace(id)
		}
	}
	t.Fatalf("no session id in output:\n%s", out)
	return ""
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	names := make([]string, 0)
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"setup", "ingest", "status", "ask", "chat", "export", "documents"} {
		assert.Contains(t, names, want)
	}
}

func TestIngestCmd_HasFlags(t *testing.T) {
	for _, name := range []string{"dir", "watch", "no-ocr", "json"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "d", ingestCmd.Flags().Lookup("dir").Shorthand)
}

func TestSetupCmd_CreatesDirectories(t *testing.T) {
	env := setupTestApp(t)
	out, err := run(t, "", "setup")
	require.NoError(t, err)
	assert.DirExists(t, env.app.Config.ExportDir)
	assert.Contains(t, out, "Vector store ready: backend=memory dimension=24 metric=cosine")
}

func TestIngestStatusAndDocuments(t *testing.T) {
	env := setupTestApp(t)
	addPDF(t, env.app.Config.DataInRoot, "guia.pdf")

	out, err := run(t, "", "ingest", "--no-ocr")
	require.NoError(t, err)
	assert.Contains(t, out, "OK      guia.pdf")
	assert.Contains(t, out, "Succeeded: 1")
	assert.False(t, env.lastCfg.OCREnabled)

	out, err = run(t, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "PDFs available:  1")
	assert.Contains(t, out, "- guia.pdf")
	assert.Contains(t, out, "OCR:             disabled")

	out, err = run(t, "", "documents", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:  ingested")

	out, err = run(t, "", "documents", "chunks", "guia.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "[0] page 1")

	out, err = run(t, "", "documents", "delete", "guia.pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted guia.pdf")

	_, err = run(t, "", "documents", "delete", "guia.pdf")
	assert.Error(t, err)
}

func TestIngestCmd_JSONReport(t *testing.T) {
	setupTestApp(t)
	dir := t.TempDir()
	addPDF(t, dir, "a.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vazio.pdf"), nil, 0o644))

	out, err := run(t, "", "ingest", "--dir", dir, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"succeeded": 1`)
	assert.Contains(t, out, `"failed": 1`)
	assert.Contains(t, out, `"error_kind": "ExtractionError"`)
}

func TestDocumentsClearRequiresConfirmation(t *testing.T) {
	setupTestApp(t)
	_, err := run(t, "", "documents", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	out, err := run(t, "", "documents", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared collection")
}

func TestAskCmd_RequiresQuestion(t *testing.T) {
	setupTestApp(t)
	_, err := run(t, "", "ask")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestAskAndExport(t *testing.T) {
	env := setupTestApp(t)
	addPDF(t, env.app.Config.DataInRoot, "guia.pdf")
	_, err := run(t, "", "ingest")
	require.NoError(t, err)

	out, err := run(t, "", "ask", "--study", "Como reduzir a ansiedade?")
	require.NoError(t, err)
	assert.Contains(t, out, "Fontes:")
	assert.Contains(t, out, "guia.pdf")
	id := sessionFrom(t, out)

	sess, err := env.app.Sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, sess.StudyMode)

	out, err = run(t, "", "ask", "--session", id, "E a exposição gradual?")
	require.NoError(t, err)
	assert.Equal(t, id, sessionFrom(t, out))
	sess, err = env.app.Sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, sess.StudyMode)
	assert.Len(t, sess.Turns, 4)

	outDir := t.TempDir()
	out, err = run(t, "", "export", id, "--out", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 4 messages")
	assert.FileExists(t, filepath.Join(outDir, "conversa_fobia_social_"+id+".json"))

	_, err = run(t, "", "export", "missing")
	assert.Error(t, err)
}

func TestChatCmd_Loop(t *testing.T) {
	env := setupTestApp(t)
	addPDF(t, env.app.Config.DataInRoot, "guia.pdf")
	_, err := run(t, "", "ingest")
	require.NoError(t, err)

	script := strings.Join([]string{
		"/ajuda",
		"/exportar",
		"/estudo",
		"Como reduzir a ansiedade?",
		"/resumo",
		"/exportar",
		"sair",
		"nunca lida",
	}, "\n")
	out, err := run(t, script, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "/estudo     alterna o modo estudo")
	assert.Contains(t, out, "Nenhuma conversa para exportar.")
	assert.Contains(t, out, "Modo estudo: enabled")
	assert.Contains(t, out, "Assistente: ")
	assert.Contains(t, out, "Mensagens: 2 (você 1, assistente 1)")
	assert.Contains(t, out, "Tópicos recentes: ansiedade")
	assert.Contains(t, out, "Conversa exportada para "+env.app.Config.ExportDir)
	assert.Contains(t, out, "encerrada")

	list, err := env.app.Sessions.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].StudyMode)
	assert.Equal(t, 2, list[0].TurnCount)
}
