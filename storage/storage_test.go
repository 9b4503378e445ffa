package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestBackends_WriteReadList(t *testing.T) {
	backends := map[string]Storage{
		"memory": NewMemory(),
		"local":  NewLocal(t.TempDir()),
	}
	ctx := context.Background()

	for name, s := range backends {
		t.Run(name, func(t *testing.T) {
			if err := s.Write(ctx, "metadata/v1.metadata.json", strings.NewReader("{}")); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := s.Write(ctx, "data/part-0.parquet", strings.NewReader("pq")); err != nil {
				t.Fatalf("write: %v", err)
			}

			got, err := ReadAll(ctx, s, "metadata/v1.metadata.json")
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != "{}" {
				t.Errorf("read = %q, want {}", got)
			}

			files, err := s.List(ctx, "metadata/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(files) != 1 || files[0] != "metadata/v1.metadata.json" {
				t.Errorf("list = %v", files)
			}

			_, err = s.Read(ctx, "metadata/missing.json")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("missing object: got %v, want ErrNotFound", err)
			}
		})
	}
}

func TestBackends_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, s := range map[string]Storage{"memory": NewMemory(), "local": NewLocal(t.TempDir())} {
		if err := s.Write(ctx, "x", strings.NewReader("y")); err == nil {
			t.Errorf("%s: write with cancelled context should fail", name)
		}
	}
}
