package core

import (
	"context"
	"time"

	"factorycore/pkg/domain"
)

// Manager applies the factory business rules on top of a FactoryStore. It
// holds no state of its own beyond the store.
type Manager struct {
	store  domain.FactoryStore
	logger Logger
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger used for snippet diagnostics.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager returns a Manager backed by store.
func NewManager(store domain.FactoryStore, opts ...ManagerOption) *Manager {
	m := &Manager{store: store, logger: noopLogger{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying store.
func (m *Manager) Store() domain.FactoryStore {
	return m.store
}

// SaveFactory stores f together with images.
func (m *Manager) SaveFactory(ctx context.Context, f *domain.Factory, images []domain.FactoryImage) (*domain.Record, error) {
	if f == nil {
		return nil, domain.InvalidArgumentf("Factory required")
	}
	return m.store.Create(ctx, domain.NewRecord(*f, images))
}

// UpdateFactory replaces the stored factory with update. Stored images are
// kept; images is accepted for symmetry with SaveFactory and is not written.
func (m *Manager) UpdateFactory(ctx context.Context, update *domain.Factory, images []domain.FactoryImage) (*domain.Record, error) {
	if update == nil {
		return nil, domain.InvalidArgumentf("Factory required")
	}
	return m.store.Update(ctx, domain.NewRecord(*update, images))
}

// RemoveFactory deletes the factory and its images.
func (m *Manager) RemoveFactory(ctx context.Context, id string) error {
	return m.store.Remove(ctx, id)
}

// GetByID returns the stored factory record.
func (m *Manager) GetByID(ctx context.Context, id string) (*domain.Record, error) {
	return m.store.GetByID(ctx, id)
}

// GetFactoryImages returns every image of the factory ordered by name. A
// factory without images has no default image and yields NotFound.
func (m *Manager) GetFactoryImages(ctx context.Context, id string) ([]domain.FactoryImage, error) {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(rec.Images) == 0 {
		return nil, domain.NotFoundf("Default image for factory %s is not found.", id)
	}
	images := domain.CloneImages(rec.Images)
	domain.SortImages(images)
	return images, nil
}

// GetFactoryImage returns the image named imageID.
func (m *Manager) GetFactoryImage(ctx context.Context, id, imageID string) (domain.FactoryImage, error) {
	rec, err := m.store.GetByID(ctx, id)
	if err != nil {
		return domain.FactoryImage{}, err
	}
	for _, img := range rec.Images {
		if img.Name == imageID {
			return domain.CloneImages([]domain.FactoryImage{img})[0], nil
		}
	}
	return domain.FactoryImage{}, domain.NotFoundf("Image with name %s is not found", imageID)
}

// GetFactoryImageURL returns a signed URL for an image when the store can
// produce one. ok is false when the image has to be served from its bytes.
func (m *Manager) GetFactoryImageURL(ctx context.Context, id, imageID string, expiry time.Duration) (string, bool, error) {
	linker, ok := m.store.(domain.ImageLinker)
	if !ok {
		return "", false, nil
	}
	return linker.ImageURL(ctx, id, imageID, expiry)
}

// GetByAttribute returns a page of factories matching every attribute.
func (m *Manager) GetByAttribute(ctx context.Context, maxItems, skipCount int, attrs []domain.Attribute) ([]*domain.Record, error) {
	return m.store.GetByAttribute(ctx, maxItems, skipCount, attrs)
}

// GetFactorySnippet renders snippetType for the factory with id. The bool
// result is false when snippetType is not a known snippet type; no error is
// returned in that case.
func (m *Manager) GetFactorySnippet(ctx context.Context, id, snippetType, baseURL string) (string, bool, error) {
	if id == "" {
		return "", false, domain.InvalidArgumentf("factory id required")
	}
	switch snippetType {
	case SnippetURL:
		return FactoryURL(baseURL, id), true, nil
	case SnippetHTML:
		return HTMLSnippet(baseURL, id), true, nil
	case SnippetIFrame:
		return IFrameSnippet(baseURL, id), true, nil
	case SnippetMarkdown:
		rec, err := m.store.GetByID(ctx, id)
		if err != nil {
			return "", false, err
		}
		var imageID string
		if len(rec.Images) > 0 {
			images := domain.CloneImages(rec.Images)
			domain.SortImages(images)
			imageID = images[0].Name
		}
		out, err := MarkdownSnippet(baseURL, rec.Factory, imageID)
		if err != nil {
			m.logger.Warn("markdown snippet rejected", "factory_id", id, "error", err.Error())
			return "", false, domain.ServerError("render markdown snippet", err)
		}
		return out, true, nil
	default:
		return "", false, nil
	}
}
