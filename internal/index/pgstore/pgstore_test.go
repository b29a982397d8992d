package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/fruitsalade/folderserve/internal/index"
	"github.com/fruitsalade/folderserve/internal/logging"
	"github.com/fruitsalade/folderserve/internal/storage"
)

var testURL string

func TestMain(m *testing.M) {
	testURL = os.Getenv("TEST_DATABASE_URL")
	if testURL == "" {
		fmt.Fprintln(os.Stderr, "SKIP: TEST_DATABASE_URL not set")
		os.Exit(0)
	}
	logging.InitNop()
	os.Exit(m.Run())
}

func newStore(t *testing.T) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	root := fmt.Sprintf("/test/%s/%d", t.Name(), time.Now().UnixNano())
	s, err := New(ctx, testURL, root)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		s.Delete(context.Background())
		s.Close()
	})
	return s
}

func TestLoadMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Load(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
}

func TestSaveLoadReplace(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, []byte(`{"a": 1}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(ctx, []byte(`{"b": 2}`)); err != nil {
		t.Fatalf("Save again: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != `{"b": 2}` {
		t.Errorf("got %s", got)
	}
}

func TestIndexRoundTripThroughPostgres(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	root := t.TempDir()
	if err := os.WriteFile(root+"/a.txt", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	ix, err := index.New(root, s, index.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := ix.FullRebuild(ctx); err != nil {
		t.Fatalf("FullRebuild: %v", err)
	}

	other, _ := index.New(root, s, index.Options{})
	if err := other.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if e, ok := other.Lookup("a.txt"); !ok || e.Size != 3 {
		t.Errorf("a.txt = %+v, %v", e, ok)
	}
}
