package core

import (
	"context"
	"io"
	"strings"
	"time"

	"factorycore/internal/infra/persistence/memory"
	"factorycore/pkg/domain"
)

// Operation names reported to tracing, metrics and audit.
const (
	OpCreateFactory        = "create_factory"
	OpGetFactory           = "get_factory"
	OpFindFactories        = "find_factories"
	OpUpdateFactory        = "update_factory"
	OpRemoveFactory        = "remove_factory"
	OpGetImage             = "get_factory_image"
	OpGetImageURL          = "get_factory_image_url"
	OpGetSnippet           = "get_factory_snippet"
	OpFactoryFromWorkspace = "factory_from_workspace"
	OpResolveFactory       = "resolve_factory"
)

var auditedOperations = map[string]bool{
	OpCreateFactory: true,
	OpUpdateFactory: true,
	OpRemoveFactory: true,
}

// DefaultImageURLExpiry bounds the lifetime of signed image URLs.
const DefaultImageURLExpiry = 15 * time.Minute

// DefaultBaseURL is used for links and snippets when no base URL is set.
const DefaultBaseURL = "http://localhost:8080"

// FactoryResponse is a factory decorated with its navigation links.
type FactoryResponse struct {
	domain.Factory
	Links []Link `json:"links"`
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock      Clock
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	resolvers  []ParametersResolver
	create     CreateValidator
	edit       EditValidator
	accept     AcceptValidator
	users      UserLookup
	workspaces WorkspaceLookup
	baseURL    string
	imageTTL   time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:    ClockFunc(func() time.Time { return time.Now().UTC() }),
		logger:   noopLogger{},
		audit:    noopAuditRecorder{},
		metrics:  noopMetricsRecorder{},
		tracer:   noopTracer{},
		baseURL:  DefaultBaseURL,
		imageTTL: DefaultImageURLExpiry,
	}
}

// WithClock sets the time source used for creation stamps and audit entries.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuditRecorder sets the audit sink for mutating operations.
func WithAuditRecorder(recorder AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.audit = recorder
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(recorder MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if recorder != nil {
			o.metrics = recorder
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithResolvers registers parameter resolvers in priority order.
func WithResolvers(resolvers ...ParametersResolver) ServiceOption {
	return func(o *serviceOptions) {
		o.resolvers = append(o.resolvers, resolvers...)
	}
}

// WithValidators replaces the validators. Nil arguments keep the defaults.
func WithValidators(create CreateValidator, edit EditValidator, accept AcceptValidator) ServiceOption {
	return func(o *serviceOptions) {
		if create != nil {
			o.create = create
		}
		if edit != nil {
			o.edit = edit
		}
		if accept != nil {
			o.accept = accept
		}
	}
}

// WithUserLookup sets the directory used to name factory creators in links.
func WithUserLookup(users UserLookup) ServiceOption {
	return func(o *serviceOptions) { o.users = users }
}

// WithWorkspaceLookup sets the workspace source for FactoryFromWorkspace.
func WithWorkspaceLookup(workspaces WorkspaceLookup) ServiceOption {
	return func(o *serviceOptions) { o.workspaces = workspaces }
}

// WithBaseURL sets the site root used in links and snippets.
func WithBaseURL(baseURL string) ServiceOption {
	return func(o *serviceOptions) {
		if baseURL != "" {
			o.baseURL = trimBase(baseURL)
		}
	}
}

// WithImageURLExpiry sets the lifetime of signed image URLs.
func WithImageURLExpiry(d time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if d > 0 {
			o.imageTTL = d
		}
	}
}

// Service is the factory facade used by transports. It applies identity
// defaults and validation around the Manager and decorates results with
// links.
type Service struct {
	manager    *Manager
	resolvers  *ResolverChain
	clock      Clock
	logger     Logger
	audit      AuditRecorder
	metrics    MetricsRecorder
	tracer     Tracer
	create     CreateValidator
	edit       EditValidator
	accept     AcceptValidator
	users      UserLookup
	workspaces WorkspaceLookup
	baseURL    string
	imageTTL   time.Duration
}

// NewService constructs a service backed by store.
func NewService(store domain.FactoryStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	def := NewDefaultValidator(o.clock)
	if o.create == nil {
		o.create = def
	}
	if o.edit == nil {
		o.edit = def
	}
	if o.accept == nil {
		o.accept = def
	}
	return &Service{
		manager:    NewManager(store, WithManagerLogger(o.logger)),
		resolvers:  NewResolverChain(o.resolvers...),
		clock:      o.clock,
		logger:     o.logger,
		audit:      o.audit,
		metrics:    o.metrics,
		tracer:     o.tracer,
		create:     o.create,
		edit:       o.edit,
		accept:     o.accept,
		users:      o.users,
		workspaces: o.workspaces,
		baseURL:    o.baseURL,
		imageTTL:   o.imageTTL,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(), opts...)
}

// Manager returns the underlying manager.
func (s *Service) Manager() *Manager {
	return s.manager
}

// BaseURL returns the site root used in links and snippets.
func (s *Service) BaseURL() string {
	return s.baseURL
}

// CreateFactory stores f with images after filling creator defaults from the
// caller identity and validating it. Images without content are dropped and
// unnamed images get a generated name.
func (s *Service) CreateFactory(ctx context.Context, f *domain.Factory, images []domain.FactoryImage) (resp *FactoryResponse, err error) {
	ctx, done := s.observe(ctx, OpCreateFactory)
	defer func() { done(responseID(resp), err) }()

	if f == nil {
		return nil, domain.InvalidArgumentf("Factory configuration required")
	}
	factory := domain.CloneFactory(*f)
	// Ids are assigned by the store.
	factory.ID = ""
	s.processDefaults(ctx, &factory)
	if err := s.create.ValidateOnCreate(ctx, &factory); err != nil {
		return nil, err
	}
	rec, err := s.manager.SaveFactory(ctx, &factory, prepareImages(images))
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, rec.Factory, rec.Images), nil
}

// CreateFactoryFromReader decodes a factory configuration from r and stores
// it as CreateFactory does.
func (s *Service) CreateFactoryFromReader(ctx context.Context, r io.Reader, format Format, images []domain.FactoryImage) (*FactoryResponse, error) {
	f, err := DecodeFactory(r, format)
	if err != nil {
		return nil, err
	}
	return s.CreateFactory(ctx, f, images)
}

// GetFactory returns the factory with id. With validate set the factory must
// also pass accept validation.
func (s *Service) GetFactory(ctx context.Context, id string, validate bool) (resp *FactoryResponse, err error) {
	ctx, done := s.observe(ctx, OpGetFactory)
	defer func() { done(id, err) }()

	rec, err := s.manager.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := s.accept.ValidateOnAccept(ctx, &rec.Factory); err != nil {
			return nil, err
		}
	}
	return s.respond(ctx, rec.Factory, rec.Images), nil
}

// FindFactories returns a page of factories matching every attribute.
// Attributes with an empty key or value are ignored and at least one must
// remain.
func (s *Service) FindFactories(ctx context.Context, maxItems, skipCount int, attrs []domain.Attribute) (out []*FactoryResponse, err error) {
	ctx, done := s.observe(ctx, OpFindFactories)
	defer func() { done("", err) }()

	query := make([]domain.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if strings.TrimSpace(a.Key) != "" && a.Value != "" {
			query = append(query, a)
		}
	}
	if len(query) == 0 {
		return nil, domain.InvalidArgumentf("Query must contain at least one attribute")
	}
	records, err := s.manager.GetByAttribute(ctx, maxItems, skipCount, query)
	if err != nil {
		return nil, err
	}
	out = make([]*FactoryResponse, len(records))
	for i, rec := range records {
		out[i] = s.respond(ctx, rec.Factory, nil)
	}
	return out, nil
}

// UpdateFactory replaces the factory stored under id. The caller must pass
// edit validation against the stored factory; the id and creation time of
// the stored factory are kept.
func (s *Service) UpdateFactory(ctx context.Context, id string, update *domain.Factory) (resp *FactoryResponse, err error) {
	ctx, done := s.observe(ctx, OpUpdateFactory)
	defer func() { done(id, err) }()

	if update == nil {
		return nil, domain.InvalidArgumentf("Factory configuration required")
	}
	existing, err := s.manager.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.edit.Validate(ctx, &existing.Factory); err != nil {
		return nil, err
	}
	next := domain.CloneFactory(*update)
	s.processDefaults(ctx, &next)
	next.ID = existing.ID()
	if existing.Factory.Creator != nil && existing.Factory.Creator.Created != nil {
		created := *existing.Factory.Creator.Created
		next.Creator.Created = &created
	}
	if err := s.create.ValidateOnCreate(ctx, &next); err != nil {
		return nil, err
	}
	rec, err := s.manager.UpdateFactory(ctx, &next, nil)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, rec.Factory, rec.Images), nil
}

// RemoveFactory deletes the factory with id and its images after edit
// validation.
func (s *Service) RemoveFactory(ctx context.Context, id string) (err error) {
	ctx, done := s.observe(ctx, OpRemoveFactory)
	defer func() { done(id, err) }()

	existing, err := s.manager.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.edit.Validate(ctx, &existing.Factory); err != nil {
		return err
	}
	return s.manager.RemoveFactory(ctx, id)
}

// GetImage returns the image imageID of the factory, or its first image when
// imageID is empty.
func (s *Service) GetImage(ctx context.Context, id, imageID string) (img domain.FactoryImage, err error) {
	ctx, done := s.observe(ctx, OpGetImage)
	defer func() { done(id, err) }()

	if imageID != "" {
		return s.manager.GetFactoryImage(ctx, id, imageID)
	}
	images, err := s.manager.GetFactoryImages(ctx, id)
	if err != nil {
		return domain.FactoryImage{}, err
	}
	return images[0], nil
}

// ImageURL returns a signed URL for the image imageID, or the first image
// when imageID is empty. ok is false when the storage cannot sign URLs and
// the bytes have to be served through GetImage.
func (s *Service) ImageURL(ctx context.Context, id, imageID string) (link string, ok bool, err error) {
	ctx, done := s.observe(ctx, OpGetImageURL)
	defer func() { done(id, err) }()

	return s.manager.GetFactoryImageURL(ctx, id, imageID, s.imageTTL)
}

// GetSnippet renders a snippet of snippetType, url by default. An empty
// baseURL uses the service base URL.
func (s *Service) GetSnippet(ctx context.Context, id, snippetType, baseURL string) (snippet string, err error) {
	ctx, done := s.observe(ctx, OpGetSnippet)
	defer func() { done(id, err) }()

	if snippetType == "" {
		snippetType = SnippetURL
	}
	if baseURL == "" {
		baseURL = s.baseURL
	}
	out, ok, err := s.manager.GetFactorySnippet(ctx, id, snippetType, baseURL)
	if err != nil {
		return "", err
	}
	if !ok {
		s.logger.Warn("unsupported snippet type", "type", snippetType)
		return "", domain.InvalidArgumentf("Snippet type %q is unsupported.", snippetType)
	}
	return out, nil
}

// FactoryFromWorkspace builds an unsaved factory from the workspace wsID.
// Only projects with a source or nested under another project are kept, and
// with projectPath set only the project at that path.
func (s *Service) FactoryFromWorkspace(ctx context.Context, wsID, projectPath string) (f *domain.Factory, err error) {
	ctx, done := s.observe(ctx, OpFactoryFromWorkspace)
	defer func() { done("", err) }()

	if wsID == "" {
		return nil, domain.InvalidArgumentf("workspace id required")
	}
	if s.workspaces == nil {
		return nil, domain.ServerError("workspace lookup is not configured", nil)
	}
	ws, err := s.workspaces.Workspace(ctx, wsID)
	if err != nil {
		return nil, err
	}
	kept := make([]domain.ProjectConfig, 0, len(ws.Projects))
	for _, p := range ws.Projects {
		if projectPath != "" && p.Path != projectPath {
			continue
		}
		subProject := len(p.Path) > 1 && strings.Contains(p.Path[1:], "/")
		if subProject || p.HasSource() {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return nil, domain.InvalidArgumentf("Unable to create factory from this workspace, because it does not contains projects with source storage")
	}
	ws.Projects = kept
	return &domain.Factory{V: domain.CurrentVersion, Workspace: ws}, nil
}

// ResolveFactory builds an unsaved factory from params with the first
// accepting resolver. With validate set the result must pass accept
// validation.
func (s *Service) ResolveFactory(ctx context.Context, params map[string]string, validate bool) (resp *FactoryResponse, err error) {
	ctx, done := s.observe(ctx, OpResolveFactory)
	defer func() { done("", err) }()

	f, err := s.resolvers.Resolve(ctx, params)
	if err != nil {
		return nil, err
	}
	if validate {
		if err := s.accept.ValidateOnAccept(ctx, f); err != nil {
			return nil, err
		}
	}
	return s.respond(ctx, *f, nil), nil
}

func (s *Service) processDefaults(ctx context.Context, f *domain.Factory) {
	caller, _ := IdentityFromContext(ctx)
	now := s.clock.Now().UnixMilli()
	if f.Creator == nil {
		f.Creator = &domain.Author{UserID: caller.UserID, Name: caller.UserName, Created: &now}
		return
	}
	if f.Creator.UserID == "" {
		f.Creator.UserID = caller.UserID
	}
	if f.Creator.Created == nil {
		f.Creator.Created = &now
	}
}

func (s *Service) respond(ctx context.Context, f domain.Factory, images []domain.FactoryImage) *FactoryResponse {
	var username string
	if s.users != nil && f.CreatorID() != "" {
		name, err := s.users.UserName(ctx, f.CreatorID())
		if err != nil {
			s.logger.Debug("creator name unavailable", "factory_id", f.ID, "user_id", f.CreatorID(), "error", err.Error())
		} else {
			username = name
		}
	}
	sorted := domain.CloneImages(images)
	domain.SortImages(sorted)
	return &FactoryResponse{
		Factory: f,
		Links:   CreateLinks(f, sorted, s.baseURL, username),
	}
}

func prepareImages(images []domain.FactoryImage) []domain.FactoryImage {
	out := make([]domain.FactoryImage, 0, len(images))
	for _, img := range images {
		if !img.HasContent() {
			continue
		}
		if img.Name == "" {
			img.Name = domain.RandomName(16)
		}
		out = append(out, img)
	}
	return out
}

func responseID(resp *FactoryResponse) string {
	if resp == nil {
		return ""
	}
	return resp.ID
}

// observe starts a span for operation and returns the function that ends it
// and reports metrics, logs and audit entries.
func (s *Service) observe(ctx context.Context, operation string) (context.Context, func(factoryID string, err error)) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	return ctx, func(factoryID string, err error) {
		duration := time.Since(started)
		span.End(err)
		s.metrics.Observe(ctx, operation, err == nil, duration)
		if auditedOperations[operation] {
			s.recordAudit(ctx, operation, factoryID, err, duration)
		}
		if err == nil {
			s.logger.Debug("factory operation completed", "operation", operation, "factory_id", factoryID, "duration", duration)
			return
		}
		kind := domain.KindOf(err)
		if kind == domain.KindServer {
			s.logger.Error("factory operation failed", "operation", operation, "factory_id", factoryID, "kind", string(kind), "error", err.Error())
			return
		}
		s.logger.Info("factory operation rejected", "operation", operation, "factory_id", factoryID, "kind", string(kind), "error", err.Error())
	}
}

func (s *Service) recordAudit(ctx context.Context, operation, factoryID string, err error, duration time.Duration) {
	caller, _ := IdentityFromContext(ctx)
	entry := AuditEntry{
		Operation: operation,
		FactoryID: factoryID,
		Actor:     caller.UserID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}
