// Package blobtest exercises the behaviour shared by every core.Store backend.
package blobtest

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"factorycore/internal/infra/blob/core"
)

// Run executes the blob store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) core.Store) {
	t.Run("PutGetHead", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		payload := []byte("image-bytes")
		info, err := s.Put(ctx, "factories/f1/images/logo", bytes.NewReader(payload), core.PutOptions{ContentType: "image/png", Metadata: map[string]string{"name": "logo"}})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		if info.Key != "factories/f1/images/logo" || info.Size != int64(len(payload)) {
			t.Fatalf("unexpected put info %+v", info)
		}
		got, data, err := core.ReadAll(ctx, s, "factories/f1/images/logo")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !bytes.Equal(data, payload) {
			t.Fatalf("payload mismatch: %q", data)
		}
		if got.ContentType != "image/png" {
			t.Fatalf("content type lost: %+v", got)
		}
		head, err := s.Head(ctx, "factories/f1/images/logo")
		if err != nil {
			t.Fatalf("head: %v", err)
		}
		if head.Size != int64(len(payload)) {
			t.Fatalf("head size %d", head.Size)
		}
	})

	t.Run("PutIsCreateOnly", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("a")), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("b")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
			t.Fatalf("expected ErrExists, got %v", err)
		}
		_, data, err := core.ReadAll(ctx, s, "k")
		if err != nil || string(data) != "a" {
			t.Fatalf("original content must survive: %q %v", data, err)
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if _, _, err := s.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("get: expected ErrNotFound, got %v", err)
		}
		if _, err := s.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("head: expected ErrNotFound, got %v", err)
		}
		existed, err := s.Delete(ctx, "missing")
		if err != nil || existed {
			t.Fatalf("delete missing: existed=%v err=%v", existed, err)
		}
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, k := range []string{"factories/b/images/2", "factories/a/images/1", "factories/b/images/1"} {
			if _, err := s.Put(ctx, k, bytes.NewReader([]byte(k)), core.PutOptions{}); err != nil {
				t.Fatalf("put %s: %v", k, err)
			}
		}
		list, err := s.List(ctx, "factories/b/")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(list) != 2 || list[0].Key != "factories/b/images/1" || list[1].Key != "factories/b/images/2" {
			t.Fatalf("unexpected list %+v", list)
		}
		existed, err := s.Delete(ctx, "factories/b/images/1")
		if err != nil || !existed {
			t.Fatalf("delete: existed=%v err=%v", existed, err)
		}
		list, err = s.List(ctx, "factories/")
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("expected 2 blobs after delete, got %d", len(list))
		}
	})
}
