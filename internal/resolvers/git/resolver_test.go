package git

import (
	"context"
	"testing"

	"factorycore/internal/core"
	"factorycore/pkg/domain"
)

func TestAccept(t *testing.T) {
	r := New()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://github.com/eclipse/che", true},
		{"https://example.org/team/repo.git", true},
		{"git@example.org:team/repo.git", true},
		{"git@github.com:eclipse/che", true},
		{"https://example.org/team/repo", false},
		{"not a url", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := r.Accept(map[string]string{ParamURL: tc.url}); got != tc.want {
			t.Fatalf("Accept(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
	if New("example.org").Accept(map[string]string{ParamURL: "https://github.com/eclipse/che"}) {
		t.Fatalf("custom hosts must replace the defaults")
	}
	if !New("Example.org").Accept(map[string]string{ParamURL: "https://example.org/team/repo"}) {
		t.Fatalf("expected configured host to be accepted")
	}
}

func TestCreateFactory(t *testing.T) {
	f, err := New().CreateFactory(context.Background(), map[string]string{
		ParamURL:     "https://github.com/eclipse/che.git",
		ParamBranch:  "master",
		ParamKeepDir: "dashboard",
		ParamName:    "che",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.V != domain.CurrentVersion || f.Name != "che" || f.Workspace.Name != "che" {
		t.Fatalf("unexpected factory: %+v", f)
	}
	p := f.Workspace.Projects[0]
	if p.Path != "/che" || p.Source.Type != "git" || p.Source.Location != "https://github.com/eclipse/che.git" {
		t.Fatalf("unexpected project: %+v", p)
	}
	if p.Source.Parameters["branch"] != "master" || p.Source.Parameters["keepDir"] != "dashboard" {
		t.Fatalf("unexpected source parameters: %v", p.Source.Parameters)
	}
	if err := core.NewDefaultValidator(nil).ValidateOnCreate(context.Background(), f); err != nil {
		t.Fatalf("resolved factory should be valid: %v", err)
	}
}

func TestCreateFactoryScpLike(t *testing.T) {
	f, err := New().CreateFactory(context.Background(), map[string]string{ParamURL: "git@github.com:eclipse/che-core.git"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.Workspace.Projects[0].Name != "che-core" || f.Workspace.Projects[0].Source.Parameters != nil {
		t.Fatalf("unexpected project: %+v", f.Workspace.Projects[0])
	}
}

func TestCreateFactoryRejectsUnacceptedParams(t *testing.T) {
	_, err := New().CreateFactory(context.Background(), map[string]string{ParamURL: "ftp://x/y"})
	if domain.KindOf(err) != domain.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestChainIntegration(t *testing.T) {
	chain := core.NewResolverChain(New())
	f, err := chain.Resolve(context.Background(), map[string]string{ParamURL: "https://gitlab.com/group/app"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.Workspace.Projects[0].Name != "app" {
		t.Fatalf("unexpected project name %q", f.Workspace.Projects[0].Name)
	}
	if _, err := chain.Resolve(context.Background(), map[string]string{"id": "x"}); err == nil {
		t.Fatalf("expected no resolver error")
	}
}
