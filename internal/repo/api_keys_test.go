package repo_test

import (
	"context"
	"strings"
	"testing"

	"curseward/internal/db"
	"curseward/internal/migrate"
	"curseward/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatal(err)
	}
	return repo.Repo{DB: conn}
}

func TestMintAPIKeyRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	key, secret, err := r.MintAPIKey(ctx, "gojo", "laptop")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !strings.HasPrefix(secret, "cw_") {
		t.Fatalf("secret %q lacks cw_ prefix", secret)
	}
	if key.KeyHash == secret {
		t.Fatal("plaintext secret stored as hash")
	}
	if key.KeyHash != repo.HashAPIKey(secret) {
		t.Fatal("stored hash does not match secret digest")
	}

	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
	if got.ID != key.ID || got.ActorID != "gojo" || got.Name != "laptop" {
		t.Fatalf("unexpected key %+v", got)
	}
}

func TestMintAPIKeyRequiresActor(t *testing.T) {
	r := newTestRepo(t)
	if _, _, err := r.MintAPIKey(context.Background(), "  ", "x"); err == nil {
		t.Fatal("expected error for blank actor")
	}
	keys, err := r.ListAPIKeys(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no rows, got %d", len(keys))
	}
}
