package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"factorycore/internal/core"
	blobcore "factorycore/internal/infra/blob/core"
	blobmemory "factorycore/internal/infra/blob/memory"
	"factorycore/internal/infra/persistence/imageblob"
	"factorycore/internal/infra/persistence/memory"
	"factorycore/internal/infra/persistence/storetest"
	"factorycore/internal/resolvers/git"
	"factorycore/pkg/domain"
)

const (
	testBaseURL = "http://factory.test"
	testSecret  = "test-secret"
)

var fixedNow = time.Date(2024, 10, 1, 8, 30, 0, 0, time.UTC)

type fixture struct {
	e          *echo.Echo
	svc        *core.Service
	workspaces *core.WorkspaceDirectory
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	workspaces := core.NewWorkspaceDirectory()
	svc := core.NewInMemoryService(
		core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })),
		core.WithBaseURL(testBaseURL),
		core.WithResolvers(git.New()),
		core.WithWorkspaceLookup(workspaces),
		core.WithUserLookup(core.NewUserDirectory(map[string]string{"user1": "alice"})),
	)
	return &fixture{e: New(svc, opts...), svc: svc, workspaces: workspaces}
}

func (f *fixture) do(t *testing.T, method, target string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func factoryJSON(t *testing.T, name, userID string) string {
	t.Helper()
	f := storetest.SampleFactory(name, userID)
	raw, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal factory: %v", err)
	}
	return string(raw)
}

func decodeFactory(t *testing.T, rec *httptest.ResponseRecorder) core.FactoryResponse {
	t.Helper()
	var resp core.FactoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return resp
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func requireMessage(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	var msg ErrorMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	if msg.Message != want {
		t.Fatalf("expected message %q, got %q", want, msg.Message)
	}
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := IssueToken([]byte(testSecret), core.Identity{UserID: userID, UserName: "name-" + userID}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func TestCreateAndGetFactory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(factoryJSON(t, "alpha", "user1")),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusOK)
	created := decodeFactory(t, rec)
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.Creator == nil || created.Creator.Created == nil || *created.Creator.Created != fixedNow.UnixMilli() {
		t.Fatalf("expected creation stamp, got %+v", created.Creator)
	}
	var named bool
	for _, l := range created.Links {
		if l.Rel == core.RelAcceptNamed {
			named = true
			if !strings.Contains(l.Href, "user=alice") {
				t.Fatalf("expected creator name in named link, got %s", l.Href)
			}
		}
	}
	if !named {
		t.Fatalf("expected accept-named link, got %+v", created.Links)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID, nil)
	requireStatus(t, rec, http.StatusOK)
	if got := decodeFactory(t, rec); got.Name != "alpha" {
		t.Fatalf("expected factory alpha, got %q", got.Name)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID+"?validate=true", nil)
	requireStatus(t, rec, http.StatusOK)

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID+"?validate=maybe", nil)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestCreateFactoryIgnoresPostedID(t *testing.T) {
	f := newFixture(t)
	body := `{"id":"posted-id","v":"4.0","name":"posted","workspace":{"name":"ws","defaultEnv":"default"}}`

	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(body), echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusOK)
	if got := decodeFactory(t, rec); got.ID == "posted-id" || got.ID == "" {
		t.Fatalf("expected server assigned id, got %q", got.ID)
	}

	mp, ctype := multipartBody(t, part{field: fieldFactory, body: strings.Replace(body, `"posted"`, `"posted-multipart"`, 1)})
	rec = f.do(t, http.MethodPost, APIRoot, mp, echo.HeaderContentType, ctype)
	requireStatus(t, rec, http.StatusOK)
	if got := decodeFactory(t, rec); got.ID == "posted-id" {
		t.Fatalf("multipart create kept the posted id")
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/posted-id", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestCreateFactoryYAML(t *testing.T) {
	f := newFixture(t)
	body := `v: "4.0"
name: yaml-factory
workspace:
  name: ws
  defaultEnv: default
`
	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(body), echo.HeaderContentType, "application/x-yaml")
	requireStatus(t, rec, http.StatusOK)
	if got := decodeFactory(t, rec); got.Name != "yaml-factory" || got.Workspace == nil || got.Workspace.Name != "ws" {
		t.Fatalf("unexpected factory %+v", got.Factory)
	}
}

func TestCreateFactoryRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(`{"v":`), echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, http.MethodPost, APIRoot, strings.NewReader(`{"v":"3.0","workspace":{"name":"ws"}}`),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestCreateFactoryConflict(t *testing.T) {
	f := newFixture(t)
	body := factoryJSON(t, "dup", "user1")

	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(body), echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusOK)
	rec = f.do(t, http.MethodPost, APIRoot, strings.NewReader(body), echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusConflict)
}

type part struct {
	field       string
	filename    string
	contentType string
	body        string
}

func multipartBody(t *testing.T, parts ...part) (io.Reader, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for _, p := range parts {
		if p.filename == "" {
			if err := w.WriteField(p.field, p.body); err != nil {
				t.Fatalf("write field: %v", err)
			}
			continue
		}
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.filename+`"`)
		h.Set("Content-Type", p.contentType)
		pw, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := pw.Write([]byte(p.body)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf, w.FormDataContentType()
}

func TestCreateFactoryMultipart(t *testing.T) {
	f := newFixture(t)

	body, ctype := multipartBody(t,
		part{field: fieldFactory, body: factoryJSON(t, "with-image", "user1")},
		part{field: fieldImage, filename: "logo.png", contentType: "image/png", body: "\x89PNG-bytes"},
		part{field: fieldImage, filename: "empty.png", contentType: "image/png", body: ""},
	)
	rec := f.do(t, http.MethodPost, APIRoot, body, echo.HeaderContentType, ctype)
	requireStatus(t, rec, http.StatusOK)
	created := decodeFactory(t, rec)

	var images int
	for _, l := range created.Links {
		if l.Rel == core.RelImage {
			images++
			if l.Produces != "image/png" {
				t.Fatalf("expected image/png link, got %q", l.Produces)
			}
		}
	}
	if images != 1 {
		t.Fatalf("expected 1 image link, got %d", images)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID+"/image", nil)
	requireStatus(t, rec, http.StatusOK)
	if rec.Header().Get(echo.HeaderContentType) != "image/png" {
		t.Fatalf("expected image/png, got %q", rec.Header().Get(echo.HeaderContentType))
	}
	if rec.Body.String() != "\x89PNG-bytes" {
		t.Fatalf("unexpected image bytes %q", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID+"/image?imgId=missing", nil)
	requireStatus(t, rec, http.StatusNotFound)
	requireMessage(t, rec, "Image with name missing is not found")
}

type signingBlobs struct {
	blobcore.Store
}

func (signingBlobs) PresignURL(_ context.Context, key string, _ blobcore.SignedURLOptions) (string, error) {
	return "https://blobs.example/" + key, nil
}

func TestGetImageRedirectsToSignedURL(t *testing.T) {
	store := imageblob.New(memory.NewStore(), signingBlobs{Store: blobmemory.New()})
	svc := core.NewService(store, core.WithClock(core.ClockFunc(func() time.Time { return fixedNow })))
	f := &fixture{e: New(svc), svc: svc}

	body, ctype := multipartBody(t,
		part{field: fieldFactory, body: factoryJSON(t, "signed", "user1")},
		part{field: fieldImage, filename: "logo.png", contentType: "image/png", body: "\x89PNG"},
	)
	rec := f.do(t, http.MethodPost, APIRoot, body, echo.HeaderContentType, ctype)
	requireStatus(t, rec, http.StatusOK)
	created := decodeFactory(t, rec)

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID+"/image", nil)
	requireStatus(t, rec, http.StatusFound)
	if loc := rec.Header().Get(echo.HeaderLocation); !strings.HasPrefix(loc, "https://blobs.example/factories/"+created.ID+"/images/") {
		t.Fatalf("unexpected redirect %q", loc)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+created.ID+"/image?imgId=missing", nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestCreateFactoryMultipartErrors(t *testing.T) {
	f := newFixture(t)

	body, ctype := multipartBody(t, part{field: fieldImage, filename: "logo.png", contentType: "image/png", body: "png"})
	rec := f.do(t, http.MethodPost, APIRoot, body, echo.HeaderContentType, ctype)
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, "'factory' section of multipart/form-data required")

	body, ctype = multipartBody(t, part{field: fieldFactory, body: "{not json"})
	rec = f.do(t, http.MethodPost, APIRoot, body, echo.HeaderContentType, ctype)
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, "Invalid JSON value of the field 'factory' provided")
}

func TestGetFactoryNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, APIRoot+"/nope", nil)
	requireStatus(t, rec, http.StatusNotFound)
	requireMessage(t, rec, "Factory with id 'nope' not found")
}

func TestFindFactories(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"one", "two"} {
		rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(factoryJSON(t, name, "user1")),
			echo.HeaderContentType, echo.MIMEApplicationJSON)
		requireStatus(t, rec, http.StatusOK)
	}

	rec := f.do(t, http.MethodGet, APIRoot+"/find?creator.userId=user1&maxItems=1&skipCount=1", nil)
	requireStatus(t, rec, http.StatusOK)
	var page []core.FactoryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected one factory, got %d", len(page))
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/find?name=two", nil)
	requireStatus(t, rec, http.StatusOK)
	page = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 1 || page[0].Name != "two" {
		t.Fatalf("expected factory two, got %+v", page)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/find?creator.userId=user1&maxItems=9223372036854775807&skipCount=1", nil)
	requireStatus(t, rec, http.StatusOK)
	page = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected the tail page of one factory, got %d", len(page))
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/find?token=abc&maxItems=5", nil)
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, "Query must contain at least one attribute")

	rec = f.do(t, http.MethodGet, APIRoot+"/find?name=two&maxItems=many", nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, http.MethodGet, APIRoot+"/find?name=two&skipCount=-1", nil)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestUpdateAndRemoveRequireCreator(t *testing.T) {
	f := newFixture(t, WithJWTSecret(testSecret))

	body := `{"v":"4.0","name":"owned","workspace":{"name":"ws","defaultEnv":"default"}}`
	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(body),
		echo.HeaderContentType, echo.MIMEApplicationJSON, echo.HeaderAuthorization, bearer(t, "user1"))
	requireStatus(t, rec, http.StatusOK)
	created := decodeFactory(t, rec)
	if created.CreatorID() != "user1" {
		t.Fatalf("expected creator from token, got %q", created.CreatorID())
	}
	target := APIRoot + "/" + created.ID

	update := `{"v":"4.0","name":"renamed","workspace":{"name":"ws","defaultEnv":"default"}}`
	rec = f.do(t, http.MethodPut, target, strings.NewReader(update),
		echo.HeaderContentType, echo.MIMEApplicationJSON, echo.HeaderAuthorization, bearer(t, "user2"))
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, "You are not authorized for the factory '"+created.ID+"'")

	rec = f.do(t, http.MethodPut, target, strings.NewReader(update),
		echo.HeaderContentType, echo.MIMEApplicationJSON, echo.HeaderAuthorization, bearer(t, "user1"))
	requireStatus(t, rec, http.StatusOK)
	updated := decodeFactory(t, rec)
	if updated.ID != created.ID || updated.Name != "renamed" {
		t.Fatalf("unexpected update result %+v", updated.Factory)
	}
	if *updated.Creator.Created != *created.Creator.Created {
		t.Fatalf("expected creation stamp to be kept")
	}

	rec = f.do(t, http.MethodDelete, target, nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, http.MethodDelete, target, nil, echo.HeaderAuthorization, "Bearer not-a-token")
	requireStatus(t, rec, http.StatusUnauthorized)

	rec = f.do(t, http.MethodDelete, target, nil, echo.HeaderAuthorization, bearer(t, "user1"))
	requireStatus(t, rec, http.StatusNoContent)

	rec = f.do(t, http.MethodGet, target, nil)
	requireStatus(t, rec, http.StatusNotFound)
}

func TestGetSnippet(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, APIRoot, strings.NewReader(factoryJSON(t, "snip", "user1")),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusOK)
	id := decodeFactory(t, rec).ID

	rec = f.do(t, http.MethodGet, APIRoot+"/"+id+"/snippet", nil)
	requireStatus(t, rec, http.StatusOK)
	if want := testBaseURL + "/factory?id=" + id; rec.Body.String() != want {
		t.Fatalf("expected %q, got %q", want, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMETextPlain) {
		t.Fatalf("expected text/plain, got %q", ct)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+id+"/snippet?type=html", nil)
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), "factory.js?"+id) {
		t.Fatalf("unexpected html snippet %q", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/"+id+"/snippet?type=svg", nil)
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, `Snippet type "svg" is unsupported.`)
}

func TestFactoryFromWorkspace(t *testing.T) {
	f := newFixture(t)
	f.workspaces.Put("ws1", domain.WorkspaceConfig{
		Name:       "ws1",
		DefaultEnv: "default",
		Projects: []domain.ProjectConfig{
			{Name: "api", Path: "/api", Source: &domain.SourceStorage{Type: "git", Location: "https://github.com/example/api.git"}},
			{Name: "scratch", Path: "/scratch"},
		},
	})

	rec := f.do(t, http.MethodGet, APIRoot+"/workspace/ws1", nil)
	requireStatus(t, rec, http.StatusOK)
	if cd := rec.Header().Get(echo.HeaderContentDisposition); cd != "attachment; filename=factory.json" {
		t.Fatalf("unexpected content disposition %q", cd)
	}
	var got domain.Factory
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode factory: %v", err)
	}
	if got.V != domain.CurrentVersion || len(got.Workspace.Projects) != 1 || got.Workspace.Projects[0].Name != "api" {
		t.Fatalf("unexpected factory %+v", got)
	}

	rec = f.do(t, http.MethodGet, APIRoot+"/workspace/ws1?path=/scratch", nil)
	requireStatus(t, rec, http.StatusBadRequest)

	rec = f.do(t, http.MethodGet, APIRoot+"/workspace/missing", nil)
	requireStatus(t, rec, http.StatusNotFound)
	requireMessage(t, rec, "Workspace with id 'missing' doesn't exist")
}

func TestResolveFactory(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, APIRoot+"/resolver", strings.NewReader(`{"url":"https://github.com/eclipse/che.git"}`),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusOK)
	got := decodeFactory(t, rec)
	if got.Workspace == nil || len(got.Workspace.Projects) != 1 {
		t.Fatalf("expected one project, got %+v", got.Workspace)
	}
	if loc := got.Workspace.Projects[0].Source.Location; loc != "https://github.com/eclipse/che.git" {
		t.Fatalf("unexpected location %q", loc)
	}

	rec = f.do(t, http.MethodPost, APIRoot+"/resolver", strings.NewReader(`{"foo":"bar"}`),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, "Cannot build factory with any of the provided parameters.")

	rec = f.do(t, http.MethodPost, APIRoot+"/resolver", strings.NewReader(""),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusBadRequest)
	requireMessage(t, rec, "Factory build parameters required")

	rec = f.do(t, http.MethodPost, APIRoot+"/resolver", strings.NewReader(`["url"]`),
		echo.HeaderContentType, echo.MIMEApplicationJSON)
	requireStatus(t, rec, http.StatusBadRequest)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("prometheus recorder: %v", err)
	}
	svc := core.NewInMemoryService(core.WithMetricsRecorder(metrics))
	e := New(svc, WithMetricsGatherer(reg))

	req := httptest.NewRequest(http.MethodGet, APIRoot+"/missing", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	requireStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `factory_service_operations_total{operation="get_factory",status="error"} 1`) {
		t.Fatalf("expected get_factory error counter, got:\n%s", rec.Body.String())
	}
}

func TestServerErrorsHideInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	errorHandler(e, core.NewNoopLogger())(domain.ServerError("persist factory state", io.ErrUnexpectedEOF), c)
	requireStatus(t, rec, http.StatusInternalServerError)
	requireMessage(t, rec, "persist factory state")
}
