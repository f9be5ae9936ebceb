package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beadscope.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.ServerURL != def.ServerURL || cfg.PollInterval != def.PollInterval ||
		cfg.TetherStrength != def.TetherStrength || cfg.LabelBudget != def.LabelBudget {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := write(t, "server_url: http://beads:9000\ntether_strength: 0.9\npoll_interval: 2s\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ServerURL != "http://beads:9000" || cfg.TetherStrength != 0.9 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.PollInterval != Duration(2*time.Second) {
		t.Fatalf("poll_interval = %v", cfg.PollInterval)
	}
	// Untouched fields keep defaults.
	if cfg.LabelBudget != Default().LabelBudget {
		t.Fatalf("label_budget = %d", cfg.LabelBudget)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []string{
		"tether_strength: 1.5\n",
		"label_budget: -1\n",
		"server_url: \"\"\n",
		"{not yaml",
	}
	for _, content := range cases {
		if _, err := Load(write(t, content)); err == nil {
			t.Fatalf("config %q accepted", content)
		}
	}
}
