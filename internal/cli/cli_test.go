package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/fakeservice"
	"github.com/doclatex/doclatex/internal/logging"
	"github.com/doclatex/doclatex/internal/models"
)

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	paths := [][]string{
		{"convert"},
		{"templates", "list"},
		{"templates", "upload"},
		{"templates", "delete"},
		{"templates", "use"},
		{"download"},
		{"history", "list"},
		{"history", "export"},
		{"health"},
		{"config", "init"},
		{"config", "show"},
		{"config", "path"},
		{"config", "token"},
	}
	for _, p := range paths {
		cmd, _, err := root.Find(p)
		if err != nil || cmd.Name() != p[len(p)-1] {
			t.Errorf("command %v not found: %v", p, err)
			continue
		}
		if cmd.Short == "" {
			t.Errorf("command %v has no short description", p)
		}
	}

	convert, _, _ := root.Find([]string{"convert"})
	for _, flag := range []string{"template", "out", "print", "copy", "no-download", "timeout"} {
		if convert.Flags().Lookup(flag) == nil {
			t.Errorf("convert is missing --%s", flag)
		}
	}
}

func TestPrompter(t *testing.T) {
	var out bytes.Buffer
	p := newPrompter(strings.NewReader("\nabc\n7\nredis\nsqlite\ny\n"), &out)

	if got := p.String("URL", "http://x"); got != "http://x" {
		t.Errorf("empty answer: got %q", got)
	}
	if got := p.Int("Timeout", 180); got != 180 {
		t.Errorf("invalid int: got %d", got)
	}
	if got := p.Int("Timeout", 180); got != 7 {
		t.Errorf("valid int: got %d", got)
	}
	if got := p.Choice("Backend", "none", []string{"none", "sqlite"}); got != "sqlite" {
		t.Errorf("choice after retry: got %q", got)
	}
	if !p.Confirm("Proxy?", false) {
		t.Error("expected yes")
	}
	if p.Confirm("Again?", true) != true {
		t.Error("EOF should return the default")
	}
	if !strings.Contains(out.String(), `Invalid choice "redis"`) {
		t.Errorf("missing retry message in %q", out.String())
	}
}

func TestRunConfigWizard(t *testing.T) {
	answers := strings.Join([]string{
		"https://convert.example.com", // service URL
		"secret",                      // api key
		"300",                         // timeout
		"onecolumn",                   // template
		"/tmp/out",                    // output dir
		"alice",                       // user
		"postgres",                    // backend
		"postgres://db/doclatex",      // dsn
		"n",                           // proxy
		"n",                           // notifications
	}, "\n") + "\n"

	var out bytes.Buffer
	cfg, err := runConfigWizard(newPrompter(strings.NewReader(answers), &out), &out)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://convert.example.com" || cfg.APIKey != "secret" || cfg.TimeoutSeconds != 300 {
		t.Errorf("service settings not applied: %+v", cfg)
	}
	if cfg.UserID != "alice" || cfg.History.Backend != "postgres" || cfg.History.PostgresDSN != "postgres://db/doclatex" {
		t.Errorf("history settings not applied: %+v", cfg.History)
	}
	if cfg.NotificationsEnabled || cfg.ProxyMode != "no-proxy" {
		t.Errorf("unexpected proxy or notification settings")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("wizard produced an invalid config: %v", err)
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil, models.HistoryStats{})
	if !strings.Contains(buf.String(), "No conversions found") {
		t.Errorf("unexpected empty output %q", buf.String())
	}

	buf.Reset()
	records := []models.HistoryRecord{{
		OriginalFileName: "paper.docx",
		Timestamp:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:           models.HistorySuccess,
		JobID:            "job-1",
		TemplateID:       "onecolumn",
	}}
	printHistory(&buf, records, models.HistoryStats{Total: 1, Success: 1})
	for _, want := range []string{"Total: 1", "paper.docx", "job-1", "onecolumn"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestSecretState(t *testing.T) {
	if got := secretState(""); got != "<not set>" {
		t.Errorf("secretState(\"\") = %q", got)
	}
	if got := secretState("abcd"); strings.Contains(got, "abcd") {
		t.Errorf("secret leaked: %q", got)
	}
}

// runCLI executes the command tree against a fake service and returns stdout.
func runCLI(t *testing.T, cfgPath, serviceURL string, args ...string) (string, error) {
	t.Helper()
	cfgFile, apiKey, apiBaseURL, apiKeySource = "", "", "", ""
	logger = logging.NewNopLogger()

	root := NewRootCmd()
	AddCommands(root)
	root.PersistentPreRun = func(*cobra.Command, []string) {}

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", cfgPath, "--api-url", serviceURL}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func setupCLI(t *testing.T) (cfgPath, serviceURL, outDir string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv(config.EnvAPIURL, "")
	t.Setenv(config.EnvAPIKey, "")
	t.Setenv(config.EnvUser, "")
	t.Setenv(config.EnvHistoryBackend, "")

	srv := httptest.NewServer(fakeservice.New(fakeservice.Options{Logger: logging.NewNopLogger()}).Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("USERPROFILE", dir)
	outDir = filepath.Join(dir, "out")
	cfgPath = filepath.Join(dir, "config")
	cfg := config.NewConfig()
	cfg.OutputDir = outDir
	cfg.UserID = "alice"
	cfg.History.SQLitePath = filepath.Join(dir, "history.db")
	cfg.NotificationsEnabled = false
	if err := config.SaveConfig(cfg, cfgPath); err != nil {
		t.Fatal(err)
	}
	return cfgPath, srv.URL, outDir
}

func TestCLI_ConvertDownloadHistory(t *testing.T) {
	cfgPath, url, outDir := setupCLI(t)

	doc := filepath.Join(t.TempDir(), "paper.docx")
	if err := os.WriteFile(doc, []byte("PK\x03\x04"), 0600); err != nil {
		t.Fatal(err)
	}

	out, err := runCLI(t, cfgPath, url, "convert", doc, "--print", "--template", "onecolumn")
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if !strings.Contains(out, `\begin{document}`) {
		t.Errorf("--print did not write LaTeX:\n%s", out)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil || len(entries) != 1 || !strings.HasSuffix(entries[0].Name(), ".zip") {
		t.Fatalf("expected one archive in %s, got %v (%v)", outDir, entries, err)
	}

	out, err = runCLI(t, cfgPath, url, "history", "list", "--search", "papr")
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(out, "paper.docx") || !strings.Contains(out, "Total: 1") {
		t.Errorf("history does not show the conversion:\n%s", out)
	}

	xlsx := filepath.Join(t.TempDir(), "history.xlsx")
	if _, err := runCLI(t, cfgPath, url, "history", "export", xlsx); err != nil {
		t.Fatalf("history export failed: %v", err)
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Errorf("export file missing: %v", err)
	}
}

func TestCLI_ConvertRejectsWrongType(t *testing.T) {
	cfgPath, url, _ := setupCLI(t)
	doc := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(doc, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, cfgPath, url, "convert", doc, "--no-download"); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestCLI_Templates(t *testing.T) {
	cfgPath, url, _ := setupCLI(t)
	tex := filepath.Join(t.TempDir(), "thesis.tex")
	if err := os.WriteFile(tex, []byte("\\documentclass{report}\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, cfgPath, url, "templates", "upload", tex); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	cfg, _ := config.LoadConfig(cfgPath)
	if cfg.DefaultTemplate != "custom_thesis" {
		t.Errorf("uploaded template not saved as default, got %s", cfg.DefaultTemplate)
	}

	out, err := runCLI(t, cfgPath, url, "templates", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out, "* ") || !strings.Contains(out, "custom_thesis") {
		t.Errorf("list does not mark the active custom template:\n%s", out)
	}

	if _, err := runCLI(t, cfgPath, url, "templates", "delete", "onecolumn"); err == nil {
		t.Error("expected built-in delete to fail")
	}
	if _, err := runCLI(t, cfgPath, url, "templates", "delete", "custom_thesis"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	cfg, _ = config.LoadConfig(cfgPath)
	if cfg.DefaultTemplate != "ieee_conference" {
		t.Errorf("default template not reset after delete, got %s", cfg.DefaultTemplate)
	}

	_, err = runCLI(t, cfgPath, url, "templates", "use", "nope")
	if err == nil {
		t.Fatal("expected unknown template to fail")
	}
	if !strings.Contains(err.Error(), "available: ieee_conference, onecolumn") {
		t.Errorf("error should list the known templates, got %v", err)
	}
}

func TestCLI_Health(t *testing.T) {
	cfgPath, url, _ := setupCLI(t)
	out, err := runCLI(t, cfgPath, url, "health", "--wait")
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if !strings.Contains(out, "healthy") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestCLI_ConfigToken(t *testing.T) {
	cfgPath, url, _ := setupCLI(t)

	out, err := runCLI(t, cfgPath, url, "config", "token", "tok-from-file")
	if err != nil {
		t.Fatalf("config token failed: %v", err)
	}
	if !strings.Contains(out, "API key saved") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = runCLI(t, cfgPath, url, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	if !strings.Contains(out, "from token-file") {
		t.Errorf("expected key source in output:\n%s", out)
	}
	if strings.Contains(out, "tok-from-file") {
		t.Error("config show revealed the API key")
	}
}
