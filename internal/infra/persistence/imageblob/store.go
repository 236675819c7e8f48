// Package imageblob decorates a factory store so that image bytes live in a
// blob store while the record keeps only image names and media types.
//
// Blobs for a new factory are written before its record is committed and
// removed after its record is deleted, so a reader that can see a record can
// always load every image it lists.
package imageblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"factorycore/internal/infra/blob/core"
	"factorycore/pkg/domain"
)

// Compile-time contract assertions.
var (
	_ domain.FactoryStore = (*Store)(nil)
	_ domain.ImageLinker  = (*Store)(nil)
)

// Store wraps a domain.FactoryStore with a blob side-store for image content.
type Store struct {
	inner    domain.FactoryStore
	blobs    core.Store
	newID    func() string
	onOrphan func(key string, err error)
}

// Option customises a Store.
type Option func(*Store)

// WithIDGenerator overrides the id assigned to factories created without one.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithOrphanHandler receives blobs that could not be removed after their
// record was gone.
func WithOrphanHandler(fn func(key string, err error)) Option {
	return func(s *Store) { s.onOrphan = fn }
}

// New wraps inner so that image bytes are kept in blobs.
func New(inner domain.FactoryStore, blobs core.Store, opts ...Option) *Store {
	s := &Store{
		inner:    inner,
		blobs:    blobs,
		newID:    domain.NewFactoryID,
		onOrphan: func(string, error) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Inner returns the wrapped record store.
func (s *Store) Inner() domain.FactoryStore { return s.inner }

// ImageKey is the blob key holding image name of factory id.
func ImageKey(id, name string) string {
	return imagePrefix(id) + url.PathEscape(name)
}

func imagePrefix(id string) string {
	return "factories/" + url.PathEscape(id) + "/images/"
}

// Create uploads every image and then commits the record. Uploaded blobs are
// removed again when the commit fails.
func (s *Store) Create(ctx context.Context, r *domain.Record) (*domain.Record, error) {
	if r == nil {
		return nil, domain.InvalidArgumentf("factory required")
	}
	rec := r.Clone()
	if rec.Factory.ID == "" {
		rec.Factory.ID = s.newID()
	}
	seen := make(map[string]struct{}, len(rec.Images))
	for _, img := range rec.Images {
		if img.Name == "" {
			return nil, domain.InvalidArgumentf("factory image must have a name")
		}
		if _, dup := seen[img.Name]; dup {
			return nil, domain.InvalidArgumentf("duplicate factory image name '%s'", img.Name)
		}
		seen[img.Name] = struct{}{}
	}

	written := make([]string, 0, len(rec.Images))
	for _, img := range rec.Images {
		key := ImageKey(rec.ID(), img.Name)
		_, err := s.blobs.Put(ctx, key, bytes.NewReader(img.Data), core.PutOptions{
			ContentType: img.MediaType,
			Metadata:    map[string]string{"factory": rec.ID(), "name": img.Name},
		})
		if err != nil {
			s.discard(ctx, written)
			if errors.Is(err, core.ErrExists) {
				return nil, domain.Conflictf("Factory with id '%s' already exists", rec.ID())
			}
			return nil, domain.ServerError("store factory image", err)
		}
		written = append(written, key)
	}

	created, err := s.inner.Create(ctx, strip(rec))
	if err != nil {
		s.discard(ctx, written)
		return nil, err
	}
	created.Images = domain.CloneImages(rec.Images)
	return created, nil
}

// Update replaces the factory part of the record. Images are untouched.
func (s *Store) Update(ctx context.Context, r *domain.Record) (*domain.Record, error) {
	if r == nil {
		return nil, domain.InvalidArgumentf("factory update required")
	}
	updated, err := s.inner.Update(ctx, strip(r))
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, updated)
}

// Remove deletes the record and then its image blobs.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.inner.Remove(ctx, id); err != nil {
		return err
	}
	infos, err := s.blobs.List(ctx, imagePrefix(id))
	if err != nil {
		s.onOrphan(imagePrefix(id), err)
		return nil
	}
	for _, info := range infos {
		if _, err := s.blobs.Delete(ctx, info.Key); err != nil {
			s.onOrphan(info.Key, err)
		}
	}
	return nil
}

// GetByID loads the record and its image bytes.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	rec, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, rec)
}

// GetByAttribute loads a page of records with their image bytes.
func (s *Store) GetByAttribute(ctx context.Context, maxItems, skipCount int, attrs []domain.Attribute) ([]*domain.Record, error) {
	page, err := s.inner.GetByAttribute(ctx, maxItems, skipCount, attrs)
	if err != nil {
		return nil, err
	}
	for i, rec := range page {
		if page[i], err = s.hydrate(ctx, rec); err != nil {
			return nil, err
		}
	}
	return page, nil
}

// ImageURL signs a GET URL for an image blob. ok is false when the blob
// backend cannot presign, in which case callers load the bytes instead.
func (s *Store) ImageURL(ctx context.Context, id, imageID string, expiry time.Duration) (string, bool, error) {
	rec, err := s.inner.GetByID(ctx, id)
	if err != nil {
		return "", false, err
	}
	name, err := pickImage(rec, imageID)
	if err != nil {
		return "", false, err
	}
	link, err := s.blobs.PresignURL(ctx, ImageKey(id, name), core.SignedURLOptions{Method: http.MethodGet, Expiry: expiry})
	switch {
	case errors.Is(err, core.ErrUnsupported):
		return "", false, nil
	case err != nil:
		return "", false, domain.ServerError(fmt.Sprintf("sign image '%s' of factory '%s'", name, id), err)
	}
	return link, true, nil
}

func pickImage(rec *domain.Record, imageID string) (string, error) {
	if imageID == "" {
		if len(rec.Images) == 0 {
			return "", domain.NotFoundf("Default image for factory %s is not found.", rec.ID())
		}
		images := domain.CloneImages(rec.Images)
		domain.SortImages(images)
		return images[0].Name, nil
	}
	for _, img := range rec.Images {
		if img.Name == imageID {
			return img.Name, nil
		}
	}
	return "", domain.NotFoundf("Image with name %s is not found", imageID)
}

func (s *Store) hydrate(ctx context.Context, rec *domain.Record) (*domain.Record, error) {
	for i, img := range rec.Images {
		_, data, err := core.ReadAll(ctx, s.blobs, ImageKey(rec.ID(), img.Name))
		if errors.Is(err, core.ErrNotFound) {
			// The record may have been removed after it was read.
			if _, gone := s.inner.GetByID(ctx, rec.ID()); domain.KindOf(gone) == domain.KindNotFound {
				return nil, gone
			}
		}
		if err != nil {
			return nil, domain.ServerError(fmt.Sprintf("load image '%s' of factory '%s'", img.Name, rec.ID()), err)
		}
		rec.Images[i].Data = data
	}
	return rec, nil
}

func (s *Store) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if _, err := s.blobs.Delete(ctx, key); err != nil {
			s.onOrphan(key, err)
		}
	}
}

func strip(r *domain.Record) *domain.Record {
	out := &domain.Record{Factory: domain.CloneFactory(r.Factory)}
	if len(r.Images) > 0 {
		out.Images = make([]domain.FactoryImage, len(r.Images))
		for i, img := range r.Images {
			out.Images[i] = domain.FactoryImage{Name: img.Name, MediaType: img.MediaType}
		}
	}
	return out
}
