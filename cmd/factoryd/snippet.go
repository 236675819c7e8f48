package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"factorycore/internal/core"
	"factorycore/pkg/domain"
)

func newSnippetCmd() *cobra.Command {
	var (
		file        string
		id          string
		snippetType string
		baseURL     string
		imageID     string
	)

	cmd := &cobra.Command{
		Use:   "snippet",
		Short: "Render an embeddable snippet for a factory",
		Long: `Render a url, html, iframe or markdown snippet without contacting
the service. The factory id comes from --id or from the factory file; the
markdown snippet needs the factory file for its button settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := renderSnippet(file, id, snippetType, baseURL, imageID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "factory configuration file (JSON or YAML)")
	cmd.Flags().StringVar(&id, "id", "", "factory id, overrides the id in --file")
	cmd.Flags().StringVarP(&snippetType, "type", "t", core.SnippetURL, "snippet type: url, html, iframe or markdown")
	cmd.Flags().StringVar(&baseURL, "base", core.DefaultBaseURL, "base URL of the factory service")
	cmd.Flags().StringVar(&imageID, "image-id", "", "image name for logo buttons")
	return cmd
}

func renderSnippet(file, id, snippetType, baseURL, imageID string) (string, error) {
	var f *domain.Factory
	if file != "" {
		loaded, err := loadFactoryFile(file)
		if err != nil {
			return "", err
		}
		f = loaded
		if id == "" {
			id = loaded.ID
		}
	}
	if id != "" && f != nil {
		f.ID = id
	}

	switch snippetType {
	case core.SnippetURL, core.SnippetHTML, core.SnippetIFrame:
		if id == "" {
			return "", fmt.Errorf("factory id required: pass --id or a --file with an id")
		}
	}
	switch snippetType {
	case core.SnippetURL:
		return core.FactoryURL(baseURL, id), nil
	case core.SnippetHTML:
		return core.HTMLSnippet(baseURL, id), nil
	case core.SnippetIFrame:
		return core.IFrameSnippet(baseURL, id), nil
	case core.SnippetMarkdown:
		if f == nil {
			return "", fmt.Errorf("markdown snippet requires --file")
		}
		return core.MarkdownSnippet(baseURL, *f, imageID)
	default:
		return "", fmt.Errorf("snippet type %q is unsupported", snippetType)
	}
}

func loadFactoryFile(path string) (*domain.Factory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open factory file: %w", err)
	}
	defer file.Close()

	format := core.FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = core.FormatYAML
	}
	return core.DecodeFactory(file, format)
}
