package core

import (
	"context"
	"sync"

	"factorycore/pkg/domain"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID   string
	UserName string
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller stored in ctx.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// UserLookup resolves user ids to display names.
type UserLookup interface {
	UserName(ctx context.Context, userID string) (string, error)
}

// WorkspaceLookup resolves existing workspace configurations by id.
type WorkspaceLookup interface {
	Workspace(ctx context.Context, id string) (*domain.WorkspaceConfig, error)
}

// UserDirectory is an in-memory UserLookup.
type UserDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewUserDirectory returns a directory seeded with id to name pairs.
func NewUserDirectory(users map[string]string) *UserDirectory {
	d := &UserDirectory{names: make(map[string]string, len(users))}
	for id, name := range users {
		d.names[id] = name
	}
	return d
}

// Put registers or renames a user.
func (d *UserDirectory) Put(userID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[userID] = name
}

// UserName implements UserLookup.
func (d *UserDirectory) UserName(_ context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	name, ok := d.names[userID]
	if !ok {
		return "", domain.NotFoundf("User with id '%s' not found", userID)
	}
	return name, nil
}

// WorkspaceDirectory is an in-memory WorkspaceLookup.
type WorkspaceDirectory struct {
	mu         sync.RWMutex
	workspaces map[string]domain.WorkspaceConfig
}

// NewWorkspaceDirectory returns an empty directory.
func NewWorkspaceDirectory() *WorkspaceDirectory {
	return &WorkspaceDirectory{workspaces: make(map[string]domain.WorkspaceConfig)}
}

// Put registers the configuration of workspace id.
func (d *WorkspaceDirectory) Put(id string, cfg domain.WorkspaceConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workspaces[id] = cloneWorkspaceConfig(cfg)
}

// Workspace implements WorkspaceLookup. The returned configuration is a copy.
func (d *WorkspaceDirectory) Workspace(_ context.Context, id string) (*domain.WorkspaceConfig, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.workspaces[id]
	if !ok {
		return nil, domain.NotFoundf("Workspace with id '%s' doesn't exist", id)
	}
	cp := cloneWorkspaceConfig(cfg)
	return &cp, nil
}

func cloneWorkspaceConfig(cfg domain.WorkspaceConfig) domain.WorkspaceConfig {
	return *domain.CloneFactory(domain.Factory{Workspace: &cfg}).Workspace
}
