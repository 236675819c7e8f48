package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"gopkg.in/yaml.v3"

	"factorycore/pkg/domain"
)

// Format names a factory configuration encoding.
type Format string

// Supported configuration formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// MaxFactorySize bounds the configuration bytes read by DecodeFactory.
const MaxFactorySize = 4 << 20

// DetectFormat maps a media type to a Format. Anything that is not YAML is
// treated as JSON.
func DetectFormat(contentType string) Format {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeFactory parses a factory configuration from r. Parse failures are
// reported as *domain.MalformedInputError.
func DecodeFactory(r io.Reader, format Format) (*domain.Factory, error) {
	if format == "" {
		format = FormatJSON
	}
	if r == nil {
		return nil, &domain.MalformedInputError{Format: string(format), Err: errors.New("empty body")}
	}
	raw, err := io.ReadAll(io.LimitReader(r, MaxFactorySize+1))
	if err != nil {
		return nil, domain.ServerError("read factory configuration", err)
	}
	if len(raw) > MaxFactorySize {
		return nil, &domain.MalformedInputError{Format: string(format), Err: fmt.Errorf("configuration exceeds %d bytes", MaxFactorySize)}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &domain.MalformedInputError{Format: string(format), Err: errors.New("empty body")}
	}
	switch format {
	case FormatJSON:
	case FormatYAML:
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, &domain.MalformedInputError{Format: string(format), Err: err}
		}
	default:
		return nil, domain.InvalidArgumentf("unsupported factory format %q", format)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	var f domain.Factory
	if err := dec.Decode(&f); err != nil {
		return nil, &domain.MalformedInputError{Format: string(format), Err: err}
	}
	if dec.More() {
		return nil, &domain.MalformedInputError{Format: string(format), Err: errors.New("unexpected data after factory document")}
	}
	return &f, nil
}

// yamlToJSON re-encodes a YAML document as JSON so that both formats share
// the JSON field names of the model.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, errors.New("factory document must be a mapping")
	}
	return json.Marshal(doc)
}
