package core

import (
	"fmt"
	"net/url"
	"strings"

	"factorycore/pkg/domain"
)

// Snippet types understood by the Manager.
const (
	SnippetURL      = "url"
	SnippetHTML     = "html"
	SnippetIFrame   = "iframe"
	SnippetMarkdown = "markdown"
)

// FactoryURL returns the acceptance URL of the factory with id.
func FactoryURL(baseURL, id string) string {
	return fmt.Sprintf("%s/factory?id=%s", trimBase(baseURL), url.QueryEscape(id))
}

// HTMLSnippet returns a script tag that embeds the factory button.
func HTMLSnippet(baseURL, id string) string {
	return fmt.Sprintf(`<script type="text/javascript" src="%s/factory/resources/factory.js?%s"></script>`, trimBase(baseURL), url.QueryEscape(id))
}

// IFrameSnippet returns an iframe that renders the factory acceptance page.
func IFrameSnippet(baseURL, id string) string {
	return fmt.Sprintf(`<iframe src="%s" width="800px" height="480px"></iframe>`, FactoryURL(baseURL, id))
}

// MarkdownSnippet renders the factory button as a markdown image link. A
// logo button points at the factory image imageID, a nologo button at the
// static badge for its color.
func MarkdownSnippet(baseURL string, f domain.Factory, imageID string) (string, error) {
	base := trimBase(baseURL)
	if f.Button == nil {
		return "", domain.InvalidArgumentf("Unable to generate markdown snippet for factory without button")
	}
	var imgURL string
	switch f.Button.Type {
	case domain.ButtonLogo:
		if imageID == "" {
			return "", domain.InvalidArgumentf("Unable to generate markdown snippet with logo button and without image id")
		}
		if f.ID == "" {
			return "", domain.InvalidArgumentf("Unable to generate markdown snippet with logo button and without factory id")
		}
		imgURL = fmt.Sprintf("%s/api/factory/%s/image?imgId=%s", base, f.ID, imageID)
	case domain.ButtonNoLogo:
		if f.Button.Attributes == nil || f.Button.Attributes.Color == "" {
			return "", domain.InvalidArgumentf("Unable to generate markdown snippet with nologo button and empty color")
		}
		imgURL = fmt.Sprintf("%s/factory/resources/factory-%s.png", base, f.Button.Attributes.Color)
	default:
		return "", domain.InvalidArgumentf("Unable to generate markdown snippet for button type %q", f.Button.Type)
	}
	return fmt.Sprintf("[![alt](%s)](%s)", imgURL, FactoryURL(base, f.ID)), nil
}

func trimBase(baseURL string) string {
	return strings.TrimRight(baseURL, "/")
}
