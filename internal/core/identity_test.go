package core

import (
	"context"
	"testing"

	"factorycore/pkg/domain"
)

func TestIdentityContext(t *testing.T) {
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatalf("expected no identity")
	}
	id, ok := IdentityFromContext(asUser("u1"))
	if !ok || id.UserID != "u1" || id.UserName != "name-u1" {
		t.Fatalf("unexpected identity: %+v %v", id, ok)
	}
}

func TestUserDirectory(t *testing.T) {
	dir := NewUserDirectory(map[string]string{"u1": "alice"})
	name, err := dir.UserName(context.Background(), "u1")
	if err != nil || name != "alice" {
		t.Fatalf("unexpected lookup: %q %v", name, err)
	}
	dir.Put("u1", "alice2")
	if name, _ := dir.UserName(context.Background(), "u1"); name != "alice2" {
		t.Fatalf("expected rename, got %q", name)
	}
	_, err = dir.UserName(context.Background(), "missing")
	requireKind(t, err, domain.KindNotFound)
}

func TestWorkspaceDirectoryReturnsCopies(t *testing.T) {
	dir := NewWorkspaceDirectory()
	dir.Put("ws1", domain.WorkspaceConfig{Name: "ws", Projects: []domain.ProjectConfig{{Name: "p", Path: "/p"}}})

	ws, err := dir.Workspace(context.Background(), "ws1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	ws.Projects[0].Name = "mutated"
	again, _ := dir.Workspace(context.Background(), "ws1")
	if again.Projects[0].Name != "p" {
		t.Fatalf("directory state leaked: %q", again.Projects[0].Name)
	}
	_, err = dir.Workspace(context.Background(), "missing")
	requireKind(t, err, domain.KindNotFound)
}
