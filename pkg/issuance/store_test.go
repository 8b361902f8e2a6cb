package issuance

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// stores returns every Store implementation under test.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	out := map[string]Store{"memory": NewMemoryStore()}
	for _, driver := range []string{DriverModernc, DriverMattn} {
		s, err := NewSQLiteStore(&SQLiteConfig{
			Path:        filepath.Join(t.TempDir(), driver+".db"),
			Driver:      driver,
			WALMode:     true,
			BusyTimeout: time.Second,
		})
		if err != nil {
			t.Fatalf("NewSQLiteStore(%s): %v", driver, err)
		}
		out[driver] = s
	}
	for _, s := range out {
		s := s
		t.Cleanup(func() { _ = s.Close() })
	}
	return out
}

func sampleRecord(subject, serial string, issuedAt time.Time) *Record {
	return &Record{
		ID:           serial + "-id",
		Serial:       serial,
		Subject:      subject,
		Issuer:       "CN=Relay CA",
		NotBefore:    issuedAt.Add(-time.Minute),
		NotAfter:     issuedAt.Add(time.Hour),
		IssuedAt:     issuedAt,
		PeerSubject:  subject,
		ConnectionID: "conn-" + serial,
		Channel:      "main",
	}
}

func TestStore_RecordAndQuery(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, subj := range []string{"CN=alice", "CN=bob", "CN=alice,O=Example"} {
				r := sampleRecord(subj, string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
				if err := s.Record(ctx, r); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}

			all, err := s.Query(ctx, nil)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("expected 3 records, got %d", len(all))
			}
			if all[0].Serial != "c" {
				t.Errorf("expected newest first, got %q", all[0].Serial)
			}
			if !all[0].IssuedAt.Equal(base.Add(2 * time.Minute)) {
				t.Errorf("IssuedAt not preserved: %v", all[0].IssuedAt)
			}
			if all[0].ConnectionID != "conn-c" || all[0].Channel != "main" {
				t.Errorf("unexpected metadata %+v", all[0])
			}

			alice, err := s.Query(ctx, &Query{Subject: "ALICE"})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(alice) != 2 {
				t.Errorf("expected 2 alice records, got %d", len(alice))
			}

			limited, err := s.Query(ctx, &Query{Limit: 1})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(limited) != 1 {
				t.Errorf("expected 1 record with limit, got %d", len(limited))
			}

			n, err := s.Count(ctx, &Query{Since: base.Add(time.Minute)})
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if n != 2 {
				t.Errorf("expected 2 records since +1m, got %d", n)
			}

			bySerial, err := s.Query(ctx, &Query{Serial: "b"})
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(bySerial) != 1 || bySerial[0].Subject != "CN=bob" {
				t.Errorf("unexpected serial lookup result %v", bySerial)
			}
		})
	}
}

func TestStore_DeleteIssuedBefore(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 4; i++ {
				r := sampleRecord("CN=x", string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
				if err := s.Record(ctx, r); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}

			deleted, err := s.DeleteIssuedBefore(ctx, base.Add(2*time.Hour))
			if err != nil {
				t.Fatalf("DeleteIssuedBefore: %v", err)
			}
			if deleted != 2 {
				t.Errorf("expected 2 deleted, got %d", deleted)
			}

			n, _ := s.Count(ctx, nil)
			if n != 2 {
				t.Errorf("expected 2 remaining, got %d", n)
			}
		})
	}
}

func TestStore_Closed(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}
			err := s.Record(context.Background(), sampleRecord("CN=x", "1", time.Now()))
			if !errors.Is(err, ErrStoreClosed) {
				t.Errorf("expected ErrStoreClosed, got %v", err)
			}
		})
	}
}

func TestNewSQLiteStore_UnknownDriver(t *testing.T) {
	_, err := NewSQLiteStore(&SQLiteConfig{Path: filepath.Join(t.TempDir(), "x.db"), Driver: "postgres"})
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}
