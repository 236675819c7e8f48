package core

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"

	"factorycore/pkg/domain"
)

// CreateValidator checks a factory before it is first persisted or replaced.
type CreateValidator interface {
	ValidateOnCreate(ctx context.Context, f *domain.Factory) error
}

// EditValidator checks that the caller may modify the stored factory.
type EditValidator interface {
	Validate(ctx context.Context, existing *domain.Factory) error
}

// AcceptValidator checks a factory that is about to be accepted.
type AcceptValidator interface {
	ValidateOnAccept(ctx context.Context, f *domain.Factory) error
}

// Validation rule names carried by domain.ValidationError.
const (
	RuleVersion       = "version"
	RuleWorkspace     = "workspace"
	RuleProjectSource = "project_source"
	RuleGitLocation   = "git_location"
	RuleKeepDir       = "keep_dir"
	RulePolicies      = "policies"
	RuleButton        = "button"
	RuleIdeActions    = "ide_actions"
	RuleOwner         = "owner"
)

var scpLikeGit = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s]+$`)

// DefaultValidator implements the create, edit and accept checkpoints.
type DefaultValidator struct {
	clock Clock
}

// NewDefaultValidator returns a validator reading the time from clock. A nil
// clock uses the wall clock.
func NewDefaultValidator(clock Clock) *DefaultValidator {
	if clock == nil {
		clock = defaultServiceOptions().clock
	}
	return &DefaultValidator{clock: clock}
}

// ValidateOnCreate implements CreateValidator.
func (v *DefaultValidator) ValidateOnCreate(_ context.Context, f *domain.Factory) error {
	if f == nil {
		return domain.InvalidArgumentf("Factory configuration required")
	}
	if err := validateStructure(f); err != nil {
		return err
	}
	if p := f.Policies; p != nil {
		if p.Since != nil && p.Until != nil && *p.Since >= *p.Until {
			return domain.NewValidationError(RulePolicies, "The 'policies.since' date must be earlier than 'policies.until'")
		}
		if p.Until != nil && *p.Until <= v.now() {
			return domain.NewValidationError(RulePolicies, "The 'policies.until' date must be in the future")
		}
	}
	return nil
}

// Validate implements EditValidator. Only the creator of a factory may edit
// it.
func (v *DefaultValidator) Validate(ctx context.Context, existing *domain.Factory) error {
	if existing == nil {
		return domain.InvalidArgumentf("Factory required")
	}
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == "" || id.UserID != existing.CreatorID() {
		return domain.NewValidationError(RuleOwner, "You are not authorized for the factory '%s'", existing.ID)
	}
	return nil
}

// ValidateOnAccept implements AcceptValidator.
func (v *DefaultValidator) ValidateOnAccept(_ context.Context, f *domain.Factory) error {
	if f == nil {
		return domain.InvalidArgumentf("Factory configuration required")
	}
	if err := validateStructure(f); err != nil {
		return err
	}
	if p := f.Policies; p != nil {
		now := v.now()
		if p.Since != nil && *p.Since > now {
			return domain.NewValidationError(RulePolicies, "This factory is not yet valid due to time restrictions applied by its owner")
		}
		if p.Until != nil && *p.Until < now {
			return domain.NewValidationError(RulePolicies, "This factory has expired due to time restrictions applied by its owner")
		}
	}
	return nil
}

func (v *DefaultValidator) now() int64 {
	return v.clock.Now().UnixMilli()
}

func validateStructure(f *domain.Factory) error {
	if f.V == "" {
		return domain.NewValidationError(RuleVersion, "Factory version 'v' is required")
	}
	if f.V != domain.CurrentVersion {
		return domain.NewValidationError(RuleVersion, "Factory version '%s' is not supported, use '%s'", f.V, domain.CurrentVersion)
	}
	if f.Workspace == nil {
		return domain.NewValidationError(RuleWorkspace, "Factory 'workspace' is required")
	}
	if strings.TrimSpace(f.Workspace.Name) == "" {
		return domain.NewValidationError(RuleWorkspace, "Factory 'workspace.name' is required")
	}
	for _, p := range f.Workspace.Projects {
		if err := validateProject(p); err != nil {
			return err
		}
	}
	if b := f.Button; b != nil {
		switch b.Type {
		case "", domain.ButtonLogo:
		case domain.ButtonNoLogo:
			if b.Attributes == nil {
				return domain.NewValidationError(RuleButton, "Button of type 'nologo' requires attributes")
			}
		default:
			return domain.NewValidationError(RuleButton, "Button type '%s' is not supported", b.Type)
		}
	}
	if ide := f.Ide; ide != nil {
		type group struct {
			event   string
			actions []domain.Action
		}
		var groups []group
		if ide.OnAppLoaded != nil {
			groups = append(groups, group{"onAppLoaded", ide.OnAppLoaded.Actions})
		}
		if ide.OnProjectsLoaded != nil {
			groups = append(groups, group{"onProjectsLoaded", ide.OnProjectsLoaded.Actions})
		}
		if ide.OnAppClosed != nil {
			groups = append(groups, group{"onAppClosed", ide.OnAppClosed.Actions})
		}
		for _, g := range groups {
			for i, a := range g.actions {
				if strings.TrimSpace(a.ID) == "" {
					return domain.NewValidationError(RuleIdeActions, "Action %d of 'ide.%s' has no id", i, g.event)
				}
			}
		}
	}
	return nil
}

func validateProject(p domain.ProjectConfig) error {
	s := p.Source
	if s == nil {
		return nil
	}
	if s.Type == "" || s.Location == "" {
		return domain.NewValidationError(RuleProjectSource, "Project '%s' must have both source type and location", p.Name)
	}
	if s.Type == "git" && !IsGitLocation(s.Location) {
		return domain.NewValidationError(RuleGitLocation, "The parameter 'source.location' of project '%s' has a value '%s' which is not a valid git URL", p.Name, s.Location)
	}
	if keepDir, ok := s.Parameters["keepDir"]; ok {
		clean := path.Clean(keepDir)
		if keepDir == "" || path.IsAbs(keepDir) || clean == ".." || strings.HasPrefix(clean, "../") {
			return domain.NewValidationError(RuleKeepDir, "The 'keepDir' parameter of project '%s' must be a relative path inside the project", p.Name)
		}
	}
	return nil
}

// IsGitLocation reports whether location is an http(s), git or ssh URL, or
// an scp-like address such as git@host:org/repo.git.
func IsGitLocation(location string) bool {
	if scpLikeGit.MatchString(location) {
		return true
	}
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "git", "ssh":
		return true
	default:
		return false
	}
}
