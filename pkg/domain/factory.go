// Package domain defines the factory configuration model, the error taxonomy
// shared by every layer, and the persistence contract implemented by the
// storage backends.
package domain

import (
	"encoding/json"
	"sort"
)

// CurrentVersion is the factory schema version produced by this service.
const CurrentVersion = "4.0"

// Factory is a named, versioned configuration bundle used to reconstruct a
// workspace session.
type Factory struct {
	ID        string           `json:"id,omitempty"`
	V         string           `json:"v"`
	Name      string           `json:"name,omitempty"`
	Creator   *Author          `json:"creator,omitempty"`
	Workspace *WorkspaceConfig `json:"workspace,omitempty"`
	Policies  *Policies        `json:"policies,omitempty"`
	Button    *Button          `json:"button,omitempty"`
	Ide       *Ide             `json:"ide,omitempty"`
}

// Author identifies the creator of a factory.
type Author struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	// Created is the creation timestamp in epoch milliseconds.
	Created *int64 `json:"created,omitempty"`
}

// CreateStrategy controls how many workspaces accepting a factory produces.
type CreateStrategy string

// Supported create strategies.
const (
	CreatePerClick   CreateStrategy = "perClick"
	CreatePerUser    CreateStrategy = "perUser"
	CreatePerAccount CreateStrategy = "perAccount"
)

// Policies restrict where and when a factory may be accepted.
type Policies struct {
	ReferrerHostname string         `json:"referer,omitempty"`
	Since            *int64         `json:"since,omitempty"`
	Until            *int64         `json:"until,omitempty"`
	Match            string         `json:"match,omitempty"`
	Create           CreateStrategy `json:"create,omitempty"`
	MaxSessionCount  *int64         `json:"maxSessionCount,omitempty"`
}

// ButtonType selects the markdown badge rendering.
type ButtonType string

// Supported button types.
const (
	ButtonLogo   ButtonType = "logo"
	ButtonNoLogo ButtonType = "nologo"
)

// Button describes the embeddable factory badge.
type Button struct {
	Type       ButtonType        `json:"type,omitempty"`
	Attributes *ButtonAttributes `json:"attributes,omitempty"`
}

// ButtonAttributes holds display options for a button.
type ButtonAttributes struct {
	Color   string `json:"color,omitempty"`
	Counter *bool  `json:"counter,omitempty"`
	Logo    string `json:"logo,omitempty"`
	Style   string `json:"style,omitempty"`
}

// Ide groups the actions the IDE performs at well-known lifecycle points.
type Ide struct {
	OnAppLoaded      *OnAppLoaded      `json:"onAppLoaded,omitempty"`
	OnProjectsLoaded *OnProjectsLoaded `json:"onProjectsLoaded,omitempty"`
	OnAppClosed      *OnAppClosed      `json:"onAppClosed,omitempty"`
}

// OnAppLoaded lists actions executed once the IDE application is loaded.
type OnAppLoaded struct {
	Actions []Action `json:"actions,omitempty"`
}

// OnProjectsLoaded lists actions executed once all projects are imported.
type OnProjectsLoaded struct {
	Actions []Action `json:"actions,omitempty"`
}

// OnAppClosed lists actions executed when the IDE is closed.
type OnAppClosed struct {
	Actions []Action `json:"actions,omitempty"`
}

// Action is a single IDE action invocation.
type Action struct {
	ID         string            `json:"id,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// WorkspaceConfig is the embedded workspace description. Environments and
// commands are carried verbatim.
type WorkspaceConfig struct {
	Name         string                     `json:"name,omitempty"`
	DefaultEnv   string                     `json:"defaultEnv,omitempty"`
	Description  string                     `json:"description,omitempty"`
	Projects     []ProjectConfig            `json:"projects,omitempty"`
	Environments map[string]json.RawMessage `json:"environments,omitempty"`
	Commands     []json.RawMessage          `json:"commands,omitempty"`
}

// ProjectConfig describes one project imported into the workspace.
type ProjectConfig struct {
	Name   string         `json:"name,omitempty"`
	Path   string         `json:"path,omitempty"`
	Type   string         `json:"type,omitempty"`
	Source *SourceStorage `json:"source,omitempty"`
	Mixins []string       `json:"mixins,omitempty"`
}

// SourceStorage locates a project's sources.
type SourceStorage struct {
	Type       string            `json:"type,omitempty"`
	Location   string            `json:"location,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// HasSource reports whether the project carries a complete source location.
func (p ProjectConfig) HasSource() bool {
	return p.Source != nil && p.Source.Type != "" && p.Source.Location != ""
}

// FactoryImage is an image attached to a factory. Name is the lookup key
// within the owning factory.
type FactoryImage struct {
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
	Data      []byte `json:"data,omitempty"`
}

// HasContent reports whether the image carries any bytes.
func (i FactoryImage) HasContent() bool {
	return len(i.Data) > 0
}

// Record is the stored representation of a factory together with its images.
type Record struct {
	Factory Factory        `json:"factory"`
	Images  []FactoryImage `json:"images,omitempty"`
}

// NewRecord wraps a factory and its images into a storable record. The
// arguments are deep-copied.
func NewRecord(f Factory, images []FactoryImage) *Record {
	return &Record{Factory: CloneFactory(f), Images: CloneImages(images)}
}

// ID returns the identifier of the wrapped factory.
func (r *Record) ID() string {
	return r.Factory.ID
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	return NewRecord(r.Factory, r.Images)
}

// CreatorID returns the creator user id, or an empty string without a creator.
func (f Factory) CreatorID() string {
	if f.Creator == nil {
		return ""
	}
	return f.Creator.UserID
}

// CloneFactory returns a deep copy of f.
func CloneFactory(f Factory) Factory {
	cp := f
	if f.Creator != nil {
		c := *f.Creator
		c.Created = cloneInt64(f.Creator.Created)
		cp.Creator = &c
	}
	if f.Workspace != nil {
		cp.Workspace = cloneWorkspace(f.Workspace)
	}
	if f.Policies != nil {
		p := *f.Policies
		p.Since = cloneInt64(f.Policies.Since)
		p.Until = cloneInt64(f.Policies.Until)
		p.MaxSessionCount = cloneInt64(f.Policies.MaxSessionCount)
		cp.Policies = &p
	}
	if f.Button != nil {
		b := *f.Button
		if f.Button.Attributes != nil {
			a := *f.Button.Attributes
			if a.Counter != nil {
				v := *a.Counter
				a.Counter = &v
			}
			b.Attributes = &a
		}
		cp.Button = &b
	}
	if f.Ide != nil {
		cp.Ide = cloneIde(f.Ide)
	}
	return cp
}

// CloneImages returns a deep copy of the image slice.
func CloneImages(images []FactoryImage) []FactoryImage {
	if images == nil {
		return nil
	}
	out := make([]FactoryImage, len(images))
	for i, img := range images {
		out[i] = img
		if img.Data != nil {
			out[i].Data = append([]byte(nil), img.Data...)
		}
	}
	return out
}

// SortImages orders images by name so that "first image" is deterministic.
func SortImages(images []FactoryImage) {
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
}

func cloneWorkspace(w *WorkspaceConfig) *WorkspaceConfig {
	cp := *w
	if w.Projects != nil {
		cp.Projects = make([]ProjectConfig, len(w.Projects))
		for i, p := range w.Projects {
			cp.Projects[i] = p
			if p.Source != nil {
				s := *p.Source
				s.Parameters = cloneStringMap(p.Source.Parameters)
				cp.Projects[i].Source = &s
			}
			cp.Projects[i].Mixins = append([]string(nil), p.Mixins...)
		}
	}
	if w.Environments != nil {
		cp.Environments = make(map[string]json.RawMessage, len(w.Environments))
		for k, v := range w.Environments {
			cp.Environments[k] = append(json.RawMessage(nil), v...)
		}
	}
	if w.Commands != nil {
		cp.Commands = make([]json.RawMessage, len(w.Commands))
		for i, c := range w.Commands {
			cp.Commands[i] = append(json.RawMessage(nil), c...)
		}
	}
	return &cp
}

func cloneIde(ide *Ide) *Ide {
	cp := Ide{}
	if ide.OnAppLoaded != nil {
		cp.OnAppLoaded = &OnAppLoaded{Actions: cloneActions(ide.OnAppLoaded.Actions)}
	}
	if ide.OnProjectsLoaded != nil {
		cp.OnProjectsLoaded = &OnProjectsLoaded{Actions: cloneActions(ide.OnProjectsLoaded.Actions)}
	}
	if ide.OnAppClosed != nil {
		cp.OnAppClosed = &OnAppClosed{Actions: cloneActions(ide.OnAppClosed.Actions)}
	}
	return &cp
}

func cloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = Action{ID: a.ID, Properties: cloneStringMap(a.Properties)}
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
