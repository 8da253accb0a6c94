package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/HatiCode/pricecast/cmd/pricecast/config"
	"github.com/HatiCode/pricecast/pkg/storage"
)

func TestNew(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dbPath := filepath.Join(t.TempDir(), "forecasts.db")

	tests := []struct {
		name    string
		cfg     config.Config
		wantNil bool
		wantErr bool
		check   func(t *testing.T, s storage.Store)
	}{
		{name: "none", cfg: config.Config{Storage: "none"}, wantNil: true},
		{
			name: "memory",
			cfg:  config.Config{Storage: "memory"},
			check: func(t *testing.T, s storage.Store) {
				if _, ok := s.(*storage.MemoryStore); !ok {
					t.Errorf("store = %T, want *storage.MemoryStore", s)
				}
			},
		},
		{
			name: "sqlite",
			cfg:  config.Config{Storage: "sqlite", SQLitePath: dbPath},
			check: func(t *testing.T, s storage.Store) {
				if _, ok := s.(*storage.SQLiteStore); !ok {
					t.Errorf("store = %T, want *storage.SQLiteStore", s)
				}
			},
		},
		{name: "unknown", cfg: config.Config{Storage: "s3"}, wantNil: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, closeFn, err := New(context.Background(), &tt.cfg, logger)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if closeFn == nil {
				t.Fatal("close function is nil")
			}
			defer func() {
				if err := closeFn(); err != nil {
					t.Errorf("close: %v", err)
				}
			}()
			if (s == nil) != tt.wantNil {
				t.Fatalf("store = %v, wantNil %v", s, tt.wantNil)
			}
			if tt.check != nil {
				tt.check(t, s)
			}
		})
	}
}
