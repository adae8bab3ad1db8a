package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmellis/chatlog/internal/config"
	"go.uber.org/fx"
)

func writeTestConfig(t *testing.T, home string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Enabled = true
	cfg.Log.Dir = filepath.Join(home, "logs")
	cfg.Log.LegacyDir = ""
	cfg.Cache.Path = filepath.Join(home, "cache.db")
	cfg.Spool.Dir = filepath.Join(home, "spool")
	cfg.Pidgin.Accounts = nil

	path := filepath.Join(home, "config.toml")
	if err := config.Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestModuleGraphResolves(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	err := fx.ValidateApp(Module(Params{ConfigPath: writeTestConfig(t, home)}))
	if err != nil {
		t.Fatalf("dependency graph does not resolve: %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := writeTestConfig(t, home)

	app := fx.New(Module(Params{ConfigPath: cfgPath}))

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Drop an event into the spool and wait for the XML store to file it.
	record := `{
		"kind": "text",
		"account": "gabble/jabber/user",
		"timestamp": 1291978219,
		"sender": {"type": "contact", "id": "user2@collabora.co.uk"},
		"receiver": {"type": "self", "id": "user@collabora.co.uk"},
		"message": "hello",
		"signal": "received"
	}`
	spoolDir := filepath.Join(home, "spool")
	tmp := filepath.Join(spoolDir, "ev.tmp")
	if err := os.WriteFile(tmp, []byte(record), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(spoolDir, "ev.json")); err != nil {
		t.Fatal(err)
	}

	logDir := filepath.Join(home, "logs")
	deadline := time.Now().Add(10 * time.Second)
	var logs []string
	for time.Now().Before(deadline) {
		logs, _ = filepath.Glob(filepath.Join(logDir, "*", "*", "*.log"))
		if len(logs) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(logs) == 0 {
		t.Fatal("spooled event never reached the XML store")
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// The lock must be released on shutdown so a second start succeeds.
	app2 := fx.New(Module(Params{ConfigPath: cfgPath}))
	if err := app2.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := app2.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := writeTestConfig(t, home)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	app := fx.New(Module(Params{ConfigPath: cfgPath}))
	if err := app.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = app.Stop(ctx) }()

	rival := fx.New(Module(Params{ConfigPath: cfgPath}))
	if err := rival.Start(ctx); err == nil {
		_ = rival.Stop(ctx)
		t.Fatal("second daemon instance should fail to acquire the lock")
	}
}
