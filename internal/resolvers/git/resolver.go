// Package git resolves factories from remote git repository parameters.
package git

import (
	"context"
	"net/url"
	"path"
	"strings"

	"factorycore/internal/core"
	"factorycore/pkg/domain"
)

// Parameter names understood by the resolver.
const (
	ParamURL     = "url"
	ParamBranch  = "branch"
	ParamKeepDir = "keepDir"
	ParamName    = "name"
)

// DefaultHosts are accepted even when the URL lacks a .git suffix.
var DefaultHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

var _ core.ParametersResolver = (*Resolver)(nil)

// Resolver builds a single-project factory from a git URL.
type Resolver struct {
	hosts map[string]struct{}
}

// New returns a resolver accepting URLs on hosts, or DefaultHosts when none
// are given.
func New(hosts ...string) *Resolver {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	r := &Resolver{hosts: make(map[string]struct{}, len(hosts))}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			r.hosts[h] = struct{}{}
		}
	}
	return r
}

// Accept reports whether params carry a git repository URL.
func (r *Resolver) Accept(params map[string]string) bool {
	loc := strings.TrimSpace(params[ParamURL])
	if loc == "" || !core.IsGitLocation(loc) {
		return false
	}
	if strings.HasSuffix(strings.TrimSuffix(loc, "/"), ".git") {
		return true
	}
	_, known := r.hosts[hostOf(loc)]
	return known
}

// CreateFactory builds a factory with one project cloned from the URL.
func (r *Resolver) CreateFactory(_ context.Context, params map[string]string) (*domain.Factory, error) {
	loc := strings.TrimSpace(params[ParamURL])
	if !r.Accept(params) {
		return nil, domain.InvalidArgumentf("Parameter '%s' must be a git repository URL", ParamURL)
	}
	repo := repoName(loc)
	source := &domain.SourceStorage{Type: "git", Location: loc}
	for _, key := range []string{ParamBranch, ParamKeepDir} {
		if v := strings.TrimSpace(params[key]); v != "" {
			if source.Parameters == nil {
				source.Parameters = make(map[string]string)
			}
			source.Parameters[key] = v
		}
	}
	return &domain.Factory{
		V:    domain.CurrentVersion,
		Name: strings.TrimSpace(params[ParamName]),
		Workspace: &domain.WorkspaceConfig{
			Name:       repo,
			DefaultEnv: "default",
			Projects: []domain.ProjectConfig{{
				Name:   repo,
				Path:   "/" + repo,
				Type:   "blank",
				Source: source,
			}},
		},
	}, nil
}

func hostOf(loc string) string {
	if u, err := url.Parse(loc); err == nil && u.Host != "" {
		return strings.ToLower(u.Hostname())
	}
	// git@host:org/repo
	if at := strings.Index(loc, "@"); at >= 0 {
		rest := loc[at+1:]
		if colon := strings.Index(rest, ":"); colon >= 0 {
			return strings.ToLower(rest[:colon])
		}
	}
	return ""
}

func repoName(loc string) string {
	p := loc
	if u, err := url.Parse(loc); err == nil && u.Host != "" {
		p = u.Path
	} else if colon := strings.LastIndex(loc, ":"); colon >= 0 {
		p = loc[colon+1:]
	}
	name := strings.TrimSuffix(path.Base(strings.TrimSuffix(p, "/")), ".git")
	if name == "" || name == "." || name == "/" {
		return "project"
	}
	return name
}
