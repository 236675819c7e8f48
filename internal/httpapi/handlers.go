package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"factorycore/internal/core"
	"factorycore/pkg/domain"
)

const (
	fieldFactory = "factory"
	fieldImage   = "image"
)

// query parameters of the find endpoint that are not factory attributes
var reservedFindParams = map[string]bool{
	"token":     true,
	"skipCount": true,
	"maxItems":  true,
}

// CreateFactoryHandler stores a factory posted as JSON, YAML or as a
// multipart form with a "factory" field and any number of "image" files.
func CreateFactoryHandler(svc *core.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()

		mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
		if mediaType == echo.MIMEMultipartForm {
			f, images, err := readMultipart(req)
			if err != nil {
				return err
			}
			resp, err := svc.CreateFactory(ctx, f, images)
			if err != nil {
				return err
			}
			return c.JSON(http.StatusOK, resp)
		}

		resp, err := svc.CreateFactoryFromReader(ctx, req.Body, core.DetectFormat(req.Header.Get(echo.HeaderContentType)), nil)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func readMultipart(req *http.Request) (*domain.Factory, []domain.FactoryImage, error) {
	if err := req.ParseMultipartForm(core.MaxFactorySize); err != nil {
		return nil, nil, badRequest("can not read multipart/form-data: %v", err)
	}
	form := req.MultipartForm

	var f *domain.Factory
	switch {
	case len(form.Value[fieldFactory]) > 0:
		decoded, err := core.DecodeFactory(strings.NewReader(form.Value[fieldFactory][0]), core.FormatJSON)
		if err != nil {
			return nil, nil, badRequest("Invalid JSON value of the field 'factory' provided")
		}
		f = decoded
	case len(form.File[fieldFactory]) > 0:
		decoded, err := decodeFactoryFile(form.File[fieldFactory][0])
		if err != nil {
			return nil, nil, err
		}
		f = decoded
	default:
		return nil, nil, badRequest("'factory' section of multipart/form-data required")
	}

	images := make([]domain.FactoryImage, 0, len(form.File[fieldImage]))
	for _, fh := range form.File[fieldImage] {
		img, err := readImage(fh)
		if err != nil {
			return nil, nil, err
		}
		images = append(images, img)
	}
	return f, images, nil
}

func decodeFactoryFile(fh *multipart.FileHeader) (*domain.Factory, error) {
	file, err := fh.Open()
	if err != nil {
		return nil, domain.ServerError("open factory part", err)
	}
	defer file.Close()
	f, err := core.DecodeFactory(file, core.DetectFormat(fh.Header.Get(echo.HeaderContentType)))
	if err != nil {
		return nil, badRequest("Invalid JSON value of the field 'factory' provided")
	}
	return f, nil
}

func readImage(fh *multipart.FileHeader) (domain.FactoryImage, error) {
	file, err := fh.Open()
	if err != nil {
		return domain.FactoryImage{}, domain.ServerError("open image part", err)
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, core.MaxFactorySize+1))
	if err != nil {
		return domain.FactoryImage{}, domain.ServerError("read image part", err)
	}
	if len(data) > core.MaxFactorySize {
		return domain.FactoryImage{}, badRequest("Image %q exceeds %d bytes", fh.Filename, core.MaxFactorySize)
	}
	return domain.FactoryImage{
		MediaType: fh.Header.Get(echo.HeaderContentType),
		Data:      data,
	}, nil
}

// GetFactoryHandler returns a factory; ?validate=true applies accept
// validation.
func GetFactoryHandler(svc *core.Service, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		validate, err := boolQuery(c, "validate")
		if err != nil {
			return err
		}
		resp, err := svc.GetFactory(c.Request().Context(), c.Param(idParam), validate)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// FindFactoriesHandler treats every query parameter except the paging and
// token parameters as an attribute filter. Only the first value of a repeated
// parameter is used.
func FindFactoriesHandler(svc *core.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		skipCount, err := intQuery(c, "skipCount")
		if err != nil {
			return err
		}
		maxItems, err := intQuery(c, "maxItems")
		if err != nil {
			return err
		}

		params := c.QueryParams()
		keys := make([]string, 0, len(params))
		for k := range params {
			if !reservedFindParams[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		attrs := make([]domain.Attribute, 0, len(keys))
		for _, k := range keys {
			attrs = append(attrs, domain.Attribute{Key: k, Value: params.Get(k)})
		}

		found, err := svc.FindFactories(c.Request().Context(), maxItems, skipCount, attrs)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, found)
	}
}

// UpdateFactoryHandler replaces the factory with the JSON or YAML body.
func UpdateFactoryHandler(svc *core.Service, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		update, err := core.DecodeFactory(req.Body, core.DetectFormat(req.Header.Get(echo.HeaderContentType)))
		if err != nil {
			return err
		}
		resp, err := svc.UpdateFactory(req.Context(), c.Param(idParam), update)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}
}

// RemoveFactoryHandler deletes a factory and answers 204.
func RemoveFactoryHandler(svc *core.Service, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.RemoveFactory(c.Request().Context(), c.Param(idParam)); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	}
}

// GetImageHandler serves image ?imgId, or the first image of the factory. When
// the storage can sign URLs the client is redirected to the blob instead.
func GetImageHandler(svc *core.Service, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, id, imgID := c.Request().Context(), c.Param(idParam), c.QueryParam("imgId")
		link, ok, err := svc.ImageURL(ctx, id, imgID)
		if err != nil {
			return err
		}
		if ok {
			return c.Redirect(http.StatusFound, link)
		}
		img, err := svc.GetImage(ctx, id, imgID)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, img.MediaType, img.Data)
	}
}

// GetSnippetHandler renders the snippet ?type as text/plain.
func GetSnippetHandler(svc *core.Service, idParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		snippet, err := svc.GetSnippet(c.Request().Context(), c.Param(idParam), c.QueryParam("type"), "")
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, snippet)
	}
}

// FactoryFromWorkspaceHandler answers a downloadable factory.json built from
// a workspace, optionally narrowed to the project at ?path.
func FactoryFromWorkspaceHandler(svc *core.Service, wsParam string) echo.HandlerFunc {
	return func(c echo.Context) error {
		f, err := svc.FactoryFromWorkspace(c.Request().Context(), c.Param(wsParam), c.QueryParam("path"))
		if err != nil {
			return err
		}
		c.Response().Header().Set(echo.HeaderContentDisposition, "attachment; filename=factory.json")
		return c.JSON(http.StatusOK, f)
	}
}

// ResolveFactoryHandler builds a factory from a JSON object of string
// parameters.
func ResolveFactoryHandler(svc *core.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		validate, err := boolQuery(c, "validate")
		if err != nil {
			return err
		}
		var params map[string]string
		if err := json.NewDecoder(c.Request().Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			return badRequest("can not understand the requested json: %v", err)
		}
		resp, err := svc.ResolveFactory(c.Request().Context(), params, validate)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, badRequest("query parameter %s must be true or false, got %q", name, raw)
	}
	return v, nil
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("query parameter %s must be an integer, got %q", name, raw)
	}
	return v, nil
}
