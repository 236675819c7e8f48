package core

import (
	"context"
	"path/filepath"
	"testing"

	"factorycore/internal/infra/blob"
	blobcore "factorycore/internal/infra/blob/core"
	"factorycore/internal/infra/persistence/imageblob"
	"factorycore/internal/infra/persistence/memory"
	"factorycore/internal/infra/persistence/sqlite"
	"factorycore/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	st, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: StorageMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()
	if _, ok := st.Store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", st.Store)
	}
	if st.Blobs != nil {
		t.Fatalf("expected no blob store")
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "factories.db")
	st, err := OpenPersistentStore(context.Background(), StorageConfig{SQLitePath: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = st.Close() }()
	if st.Driver != StorageSQLite {
		t.Fatalf("expected sqlite driver, got %s", st.Driver)
	}
	s, ok := st.Store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", st.Store)
	}
	if s.Path() != path {
		t.Fatalf("unexpected path %s", s.Path())
	}
}

func TestOpenPersistentStoreWithBlobImages(t *testing.T) {
	root := t.TempDir()
	st, err := OpenPersistentStore(context.Background(), StorageConfig{
		Driver: StorageMemory,
		Blob:   &blob.Config{Driver: blobcore.DriverFilesystem, FSRoot: root},
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := st.Store.(*imageblob.Store); !ok {
		t.Fatalf("expected image blob decorator, got %T", st.Store)
	}

	svc := NewService(st.Store)
	created, err := svc.CreateFactory(asUser("u"), sampleFactory("f", "u"), []domain.FactoryImage{pngImage("logo")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := st.Blobs.Head(context.Background(), imageblob.ImageKey(created.ID, "logo")); err != nil {
		t.Fatalf("expected image in blob store: %v", err)
	}
	img, err := svc.GetImage(context.Background(), created.ID, "logo")
	if err != nil || !img.HasContent() {
		t.Fatalf("expected rehydrated image: %+v %v", img, err)
	}
}

func TestOpenPersistentStoreErrors(t *testing.T) {
	if _, err := OpenPersistentStore(context.Background(), StorageConfig{Driver: "mongo"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	_, err := OpenPersistentStore(context.Background(), StorageConfig{
		Driver: StorageMemory,
		Blob:   &blob.Config{Driver: "ftp"},
	})
	if err == nil {
		t.Fatalf("expected blob driver error")
	}
}

func TestStorageCloseNil(t *testing.T) {
	var st *Storage
	if err := st.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}
