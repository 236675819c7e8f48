package core

import (
	"net/http"
	"net/url"

	"factorycore/pkg/domain"
)

// Link relations attached to factory responses.
const (
	RelSelf            = "self"
	RelAccept          = "accept"
	RelAcceptNamed     = "accept-named"
	RelImage           = "image"
	RelAccepted        = "accepted"
	RelSnippetURL      = "snippet/url"
	RelSnippetHTML     = "snippet/html"
	RelSnippetMarkdown = "snippet/markdown"
	RelSnippetIFrame   = "snippet/iframe"
)

const (
	mediaJSON = "application/json"
	mediaHTML = "text/html"
	mediaText = "text/plain"
)

// Link is a hypermedia reference returned alongside a factory. Links are
// computed per response and never persisted.
type Link struct {
	Href     string `json:"href"`
	Rel      string `json:"rel"`
	Method   string `json:"method"`
	Produces string `json:"produces,omitempty"`
}

// CreateLinks builds the links for f. baseURL is the site root; the REST
// links live under baseURL + "/api". username enables the accept-named link
// for named factories. Factories without an id get no links.
func CreateLinks(f domain.Factory, images []domain.FactoryImage, baseURL, username string) []Link {
	if f.ID == "" {
		return []Link{}
	}
	base := trimBase(baseURL)
	api := base + "/api/factory/" + url.PathEscape(f.ID)
	id := url.QueryEscape(f.ID)

	links := []Link{
		{Href: api, Rel: RelSelf, Method: http.MethodGet, Produces: mediaJSON},
	}
	accept := base + "/f?id=" + id
	links = append(links, Link{Href: accept, Rel: RelAccept, Method: http.MethodGet, Produces: mediaHTML})
	if f.Name != "" && username != "" {
		named := base + "/f?name=" + url.QueryEscape(f.Name) + "&user=" + url.QueryEscape(username)
		links = append(links, Link{Href: named, Rel: RelAcceptNamed, Method: http.MethodGet, Produces: mediaHTML})
	}
	for _, img := range images {
		links = append(links, Link{
			Href:     api + "/image?imgId=" + url.QueryEscape(img.Name),
			Rel:      RelImage,
			Method:   http.MethodGet,
			Produces: img.MediaType,
		})
	}
	links = append(links, Link{
		Href:   base + "/api/analytics/public-metric/factory_used?factory=" + url.QueryEscape(accept),
		Rel:    RelAccepted,
		Method: http.MethodGet,
	})
	for _, s := range []struct{ rel, typ string }{
		{RelSnippetURL, SnippetURL},
		{RelSnippetHTML, SnippetHTML},
		{RelSnippetMarkdown, SnippetMarkdown},
		{RelSnippetIFrame, SnippetIFrame},
	} {
		links = append(links, Link{
			Href:     api + "/snippet?type=" + s.typ,
			Rel:      s.rel,
			Method:   http.MethodGet,
			Produces: mediaText,
		})
	}
	return links
}
