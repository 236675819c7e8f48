package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"factorycore/pkg/domain"
)

func millis(t time.Time) *int64 {
	v := t.UnixMilli()
	return &v
}

func TestValidateOnCreate(t *testing.T) {
	v := NewDefaultValidator(fixedClock())
	tests := []struct {
		name   string
		mutate func(*domain.Factory)
		rule   string
	}{
		{name: "valid"},
		{name: "missing version", mutate: func(f *domain.Factory) { f.V = "" }, rule: RuleVersion},
		{name: "old version", mutate: func(f *domain.Factory) { f.V = "2.1" }, rule: RuleVersion},
		{name: "missing workspace", mutate: func(f *domain.Factory) { f.Workspace = nil }, rule: RuleWorkspace},
		{name: "unnamed workspace", mutate: func(f *domain.Factory) { f.Workspace.Name = " " }, rule: RuleWorkspace},
		{name: "source without location", mutate: func(f *domain.Factory) { f.Workspace.Projects[0].Source.Location = "" }, rule: RuleProjectSource},
		{name: "bad git location", mutate: func(f *domain.Factory) { f.Workspace.Projects[0].Source.Location = "not a url" }, rule: RuleGitLocation},
		{name: "scp git location", mutate: func(f *domain.Factory) { f.Workspace.Projects[0].Source.Location = "git@github.com:org/repo.git" }},
		{name: "project without source", mutate: func(f *domain.Factory) { f.Workspace.Projects[0].Source = nil }},
		{name: "relative keepDir", mutate: func(f *domain.Factory) {
			f.Workspace.Projects[0].Source.Parameters = map[string]string{"keepDir": "src/main"}
		}},
		{name: "absolute keepDir", mutate: func(f *domain.Factory) {
			f.Workspace.Projects[0].Source.Parameters = map[string]string{"keepDir": "/etc"}
		}, rule: RuleKeepDir},
		{name: "escaping keepDir", mutate: func(f *domain.Factory) {
			f.Workspace.Projects[0].Source.Parameters = map[string]string{"keepDir": "a/../../b"}
		}, rule: RuleKeepDir},
		{name: "since after until", mutate: func(f *domain.Factory) {
			f.Policies = &domain.Policies{Since: millis(fixedNow.Add(48 * time.Hour)), Until: millis(fixedNow.Add(24 * time.Hour))}
		}, rule: RulePolicies},
		{name: "until in past", mutate: func(f *domain.Factory) {
			f.Policies = &domain.Policies{Until: millis(fixedNow.Add(-time.Hour))}
		}, rule: RulePolicies},
		{name: "nologo without attributes", mutate: func(f *domain.Factory) {
			f.Button = &domain.Button{Type: domain.ButtonNoLogo}
		}, rule: RuleButton},
		{name: "unknown button", mutate: func(f *domain.Factory) {
			f.Button = &domain.Button{Type: "shiny"}
		}, rule: RuleButton},
		{name: "action without id", mutate: func(f *domain.Factory) {
			f.Ide = &domain.Ide{OnProjectsLoaded: &domain.OnProjectsLoaded{Actions: []domain.Action{{ID: "openFile"}, {}}}}
		}, rule: RuleIdeActions},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := sampleFactory("valid", "user")
			if tc.mutate != nil {
				tc.mutate(f)
			}
			err := v.ValidateOnCreate(context.Background(), f)
			if tc.rule == "" {
				if err != nil {
					t.Fatalf("expected valid factory, got %v", err)
				}
				return
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Rule != tc.rule {
				t.Fatalf("expected rule %s, got %s (%v)", tc.rule, verr.Rule, err)
			}
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected validation error to be invalid argument")
			}
		})
	}
}

func TestValidateOnCreateNil(t *testing.T) {
	requireKind(t, NewDefaultValidator(nil).ValidateOnCreate(context.Background(), nil), domain.KindInvalidArgument)
}

func TestEditValidatorRequiresCreator(t *testing.T) {
	v := NewDefaultValidator(fixedClock())
	f := sampleFactory("f", "owner")
	f.ID = "factory1"

	if err := v.Validate(asUser("owner"), f); err != nil {
		t.Fatalf("owner should be allowed: %v", err)
	}
	for _, ctx := range []context.Context{asUser("intruder"), context.Background(), WithIdentity(context.Background(), Identity{})} {
		err := v.Validate(ctx, f)
		var verr *domain.ValidationError
		if !errors.As(err, &verr) || verr.Rule != RuleOwner {
			t.Fatalf("expected owner rule failure, got %v", err)
		}
		if !strings.Contains(err.Error(), "factory1") {
			t.Fatalf("expected factory id in message: %v", err)
		}
	}
}

func TestValidateOnAcceptPolicyWindow(t *testing.T) {
	v := NewDefaultValidator(fixedClock())
	tests := []struct {
		name     string
		policies *domain.Policies
		wantErr  string
	}{
		{name: "no policies"},
		{name: "open window", policies: &domain.Policies{Since: millis(fixedNow.Add(-time.Hour)), Until: millis(fixedNow.Add(time.Hour))}},
		{name: "not yet valid", policies: &domain.Policies{Since: millis(fixedNow.Add(time.Hour))}, wantErr: "not yet valid"},
		{name: "expired", policies: &domain.Policies{Until: millis(fixedNow.Add(-time.Hour))}, wantErr: "expired"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := sampleFactory("f", "u")
			f.Policies = tc.policies
			err := v.ValidateOnAccept(context.Background(), f)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			requireKind(t, err, domain.KindInvalidArgument)
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected %q in %v", tc.wantErr, err)
			}
		})
	}

	bad := sampleFactory("f", "u")
	bad.V = ""
	requireKind(t, v.ValidateOnAccept(context.Background(), bad), domain.KindInvalidArgument)
	requireKind(t, v.ValidateOnAccept(context.Background(), nil), domain.KindInvalidArgument)
}

func TestIsGitLocation(t *testing.T) {
	for loc, want := range map[string]bool{
		"https://github.com/org/repo.git": true,
		"http://host/repo":                true,
		"git://host/repo.git":             true,
		"ssh://git@host:22/repo.git":      true,
		"git@github.com:org/repo.git":     true,
		"ftp://host/repo":                 false,
		"/local/path":                     false,
		"":                                false,
	} {
		if got := IsGitLocation(loc); got != want {
			t.Fatalf("IsGitLocation(%q) = %v, want %v", loc, got, want)
		}
	}
}
