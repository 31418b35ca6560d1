package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("put and get", func(t *testing.T) {
		if err := s.Put(ctx, "documents/abc.pdf", []byte("hello"), "application/pdf"); err != nil {
			t.Fatalf("put failed: %v", err)
		}
		data, err := s.Get(ctx, "documents/abc.pdf")
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("expected hello, got %s", data)
		}
	})

	t.Run("get returns copies", func(t *testing.T) {
		data, _ := s.Get(ctx, "documents/abc.pdf")
		data[0] = 'X'
		again, _ := s.Get(ctx, "documents/abc.pdf")
		if string(again) != "hello" {
			t.Error("stored bytes were mutated through a Get result")
		}
	})

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrObjectNotFound) {
			t.Errorf("expected ErrObjectNotFound, got %v", err)
		}
		ok, err := s.Exists(ctx, "nope")
		if err != nil || ok {
			t.Errorf("expected exists=false, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("list by prefix", func(t *testing.T) {
		_ = s.Put(ctx, "documents/def.pdf", []byte("x"), "application/pdf")
		_ = s.Put(ctx, "other/ghi.pdf", []byte("y"), "application/pdf")

		keys, err := s.List(ctx, "documents/")
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(keys) != 2 {
			t.Errorf("expected 2 keys, got %v", keys)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := s.Delete(ctx, "documents/abc.pdf"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
		if err := s.Delete(ctx, "documents/abc.pdf"); err != nil {
			t.Fatalf("second delete failed: %v", err)
		}
		ok, _ := s.Exists(ctx, "documents/abc.pdf")
		if ok {
			t.Error("object still exists after delete")
		}
	})

	t.Run("simulated put failure", func(t *testing.T) {
		s.FailPuts = true
		defer func() { s.FailPuts = false }()
		if err := s.Put(ctx, "fail", []byte("z"), ""); !errors.Is(err, ErrPutFailed) {
			t.Errorf("expected ErrPutFailed, got %v", err)
		}
	})
}
