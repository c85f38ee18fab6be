package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"finances/internal/config"
	"finances/internal/core"
	sheetsmem "finances/internal/sheets/memory"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}

	cfg, err := FromAppConfig(&config.Config{
		DataBackend:       "sqlite",
		SQLiteDBPath:      "/tmp/x.db",
		RecalcConcurrency: 3,
		RuleCacheTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if cfg.Type != SQLiteBackend || cfg.SQLiteDBPath != "/tmp/x.db" || cfg.RecalcConcurrency != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://x", AMQPExchange: "e"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	dir := t.TempDir()
	seedFile := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(seedFile, []byte("rules:\n  - keyword: tesco\n    category: Groceries\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		RulesSeedFile: seedFile,
		RuleCacheTTL:  time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if res.AMQP != nil {
		t.Fatalf("AMQP should be disabled without a URL")
	}
	ctx := context.Background()
	book, err := res.Ledger.CreateBook(ctx, "Home")
	if err != nil {
		t.Fatal(err)
	}
	list, err := res.Rules.List(ctx, book.ID)
	if err != nil || len(list) != 1 || list[0].Category != "Groceries" {
		t.Fatalf("seeded rules = %+v, %v", list, err)
	}
}

func TestCreateBackend_SQLite(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: filepath.Join(t.TempDir(), "ledger.db"),
		RuleCacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	ctx := context.Background()
	book, err := res.Ledger.CreateBook(ctx, "Home")
	if err != nil {
		t.Fatal(err)
	}
	acc, err := res.Ledger.CreateAccount(ctx, book.ID, "Current", core.Money{Cents: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if acc.Current.Balance.Cents != 1000 {
		t.Fatalf("balance = %s", acc.Current.Balance)
	}
	if err := res.Cleanup(); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
}

func TestCreateBackend_BadSeedFile(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		Type:          MemoryBackend,
		RulesSeedFile: filepath.Join(t.TempDir(), "missing.yaml"),
	})
	if err == nil {
		t.Fatal("expected error for missing seed file")
	}
}

func TestNewExporter_FallsBackToMemory(t *testing.T) {
	exp, err := NewExporter(context.Background(), slogDiscard(), "", "Balances")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := exp.(*sheetsmem.Store); !ok {
		t.Fatalf("expected in-memory exporter, got %T", exp)
	}
}
