package core

import (
	"errors"
	"strings"
	"testing"

	"factorycore/pkg/domain"
)

func TestDetectFormat(t *testing.T) {
	for ct, want := range map[string]Format{
		"application/json":                FormatJSON,
		"application/json; charset=utf-8": FormatJSON,
		"application/yaml":                FormatYAML,
		"text/x-yaml; charset=utf-8":      FormatYAML,
		"":                                FormatJSON,
		"text/plain":                      FormatJSON,
	} {
		if got := DetectFormat(ct); got != want {
			t.Fatalf("DetectFormat(%q) = %s, want %s", ct, got, want)
		}
	}
}

func TestDecodeFactoryJSON(t *testing.T) {
	body := `{"v":"4.0","name":"demo","workspace":{"name":"ws","environments":{"default":{"recipe":{"type":"dockerimage"}}},
	"projects":[{"name":"p","path":"/p","source":{"type":"git","location":"https://github.com/a/b.git"}}]},
	"ide":{"onAppLoaded":{"actions":[{"id":"openWelcomePage","properties":{"greetingTitle":"hi"}}]}}}`
	f, err := DecodeFactory(strings.NewReader(body), FormatJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Name != "demo" || f.V != "4.0" || f.Workspace.Name != "ws" {
		t.Fatalf("unexpected factory: %+v", f)
	}
	if f.Workspace.Projects[0].Source.Location != "https://github.com/a/b.git" {
		t.Fatalf("unexpected project source: %+v", f.Workspace.Projects[0].Source)
	}
	if _, ok := f.Workspace.Environments["default"]; !ok {
		t.Fatalf("expected environment to pass through")
	}
	if f.Ide.OnAppLoaded.Actions[0].Properties["greetingTitle"] != "hi" {
		t.Fatalf("expected ide action properties")
	}
}

func TestDecodeFactoryYAML(t *testing.T) {
	body := `
v: "4.0"
name: demo
policies:
  referer: example.com
  since: 1000
workspace:
  name: ws
  projects:
    - name: p
      source:
        type: git
        location: https://github.com/a/b.git
`
	f, err := DecodeFactory(strings.NewReader(body), FormatYAML)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Name != "demo" || f.Policies.ReferrerHostname != "example.com" || *f.Policies.Since != 1000 {
		t.Fatalf("unexpected factory: %+v %+v", f, f.Policies)
	}
	if f.Workspace.Projects[0].Source.Type != "git" {
		t.Fatalf("unexpected project: %+v", f.Workspace.Projects[0])
	}
}

func TestDecodeFactoryMalformed(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		format Format
	}{
		{"empty", "  ", FormatJSON},
		{"broken json", `{"v":`, FormatJSON},
		{"wrong type", `{"v": 4}`, FormatJSON},
		{"trailing data", `{"v":"4.0"} {"v":"4.0"}`, FormatJSON},
		{"broken yaml", "v: [unterminated", FormatYAML},
		{"yaml scalar", "just text", FormatYAML},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeFactory(strings.NewReader(tc.body), tc.format)
			var malformed *domain.MalformedInputError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected malformed input error, got %v", err)
			}
			if malformed.Format != string(tc.format) {
				t.Fatalf("unexpected format %s", malformed.Format)
			}
			requireKind(t, err, domain.KindInvalidArgument)
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				t.Fatalf("malformed input must not be a validation error")
			}
		})
	}
}

func TestDecodeFactoryUnsupportedFormat(t *testing.T) {
	_, err := DecodeFactory(strings.NewReader("{}"), Format("toml"))
	requireKind(t, err, domain.KindInvalidArgument)
}
