package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/rankview/pkg/database"
	apperrors "github.com/Adithya-Monish-Kumar-K/rankview/pkg/errors"
)

func writeDataDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"s0.json":    `[{"mal_ID":1,"parameter":2.5,"num_lists":500},{"mal_ID":2,"parameter":1.5,"num_lists":50}]`,
		"s1.json":    `[{"mal_ID":2,"parameter":0.5,"num_lists":5000}]`,
		"anime.json": `{"1":{"rank":1,"score":9.1,"title":"Alpha"},"2":{"rank":2,"title":"Beta","title_en":"Beta EN"}}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeConfig(t *testing.T, dataDir, extra string) string {
	t.Helper()
	body := `
data:
  dir: ` + dataDir + `
  snapshots:
    - value: 0
      file: s0.json
    - value: 1000
      file: s1.json
view:
  cutoffStep: 50
logging:
  level: error
` + extra
	path := filepath.Join(t.TempDir(), "rankview.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTableJSON(t *testing.T) {
	path := writeConfig(t, writeDataDir(t), "")
	out, err := runCommand(t, "table", "-c", path, "--format", "json", "--cutoff", "100")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	var resp struct {
		Snapshot int `json:"snapshot"`
		Cutoff   int `json:"cutoff"`
		Rows     []struct {
			MALID int      `json:"mal_id"`
			Cells []string `json:"cells"`
		} `json:"rows"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if resp.Cutoff != 100 || len(resp.Rows) != 1 || resp.Rows[0].MALID != 1 {
		t.Fatalf("unexpected output %+v", resp)
	}
	// basic columns: Rank, MAL Rank, MAL Score, ...
	if score := resp.Rows[0].Cells[2]; score != "9.1" {
		t.Errorf("score cell = %q, want 9.1", score)
	}
}

func TestTableText(t *testing.T) {
	path := writeConfig(t, writeDataDir(t), "")
	out, err := runCommand(t, "table", "-c", path, "--snapshot", "1", "--variant", "extended")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	for _, want := range []string{"Snapshot 1000", "1 rows", "Beta EN", "Rank diff"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableHTML(t *testing.T) {
	path := writeConfig(t, writeDataDir(t), "")
	out, err := runCommand(t, "table", "-c", path, "-f", "html")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if !strings.HasPrefix(out, `<table id="animeTable">`) {
		t.Errorf("unexpected html %q", out)
	}
}

func TestTableRejectsBadInput(t *testing.T) {
	path := writeConfig(t, writeDataDir(t), "")
	for _, args := range [][]string{
		{"table", "-c", path, "--snapshot", "5"},
		{"table", "-c", path, "--cutoff", "-1"},
		{"table", "-c", path, "--cutoff", "120"},
		{"table", "-c", path, "--cutoff", "90000"},
		{"table", "-c", path, "--format", "csv"},
	} {
		if _, err := runCommand(t, args...); !errors.Is(err, apperrors.ErrInvalidInput) {
			t.Errorf("%v: err = %v, want ErrInvalidInput", args, err)
		}
	}
}

func TestTableMissingData(t *testing.T) {
	dir := writeDataDir(t)
	os.Remove(filepath.Join(dir, "s0.json"))
	path := writeConfig(t, dir, "")
	if _, err := runCommand(t, "table", "-c", path); !errors.Is(err, apperrors.ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}
}

func TestTableSQLiteMetadata(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "anime.sqlite")
	db, err := database.New(config.MetadataConfig{Driver: "sqlite", DSN: dsn, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}
	_, err = db.DB.Exec(`CREATE TABLE anime (
		anime_id INTEGER PRIMARY KEY, title TEXT NOT NULL, title_en TEXT,
		mean REAL, rank INTEGER, popularity INTEGER)`)
	if err == nil {
		_, err = db.DB.Exec(`INSERT INTO anime VALUES (1, 'Alpha from db', NULL, 9.1, 1, 10)`)
	}
	db.Close()
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}

	path := writeConfig(t, writeDataDir(t), "metadata:\n  driver: sqlite\n  dsn: "+dsn+"\n")
	out, err := runCommand(t, "table", "-c", path, "--cutoff", "100")
	if err != nil {
		t.Fatalf("table: %v", err)
	}
	if !strings.Contains(out, "Alpha from db") {
		t.Errorf("metadata not read from sqlite:\n%s", out)
	}
}

func TestLoadtest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/snapshots":
			fmt.Fprint(w, `[{"index":0}]`)
		default:
			fmt.Fprint(w, `{"cache_hit":false}`)
		}
	}))
	defer srv.Close()

	cfg := writeConfig(t, t.TempDir(), "")
	out, err := runCommand(t, "loadtest", "-c", cfg, "--url", srv.URL, "--concurrency", "2", "--duration", "50ms")
	if err != nil {
		t.Fatalf("loadtest: %v", err)
	}
	for _, want := range []string{"Target:      " + srv.URL, "=== Results ===", "Failed:          0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
