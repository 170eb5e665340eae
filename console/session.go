package console

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/saiset-co/sai-gateway-console/api"
	"github.com/saiset-co/sai-gateway-console/cache"
	"github.com/saiset-co/sai-gateway-console/client"
	"github.com/saiset-co/sai-gateway-console/cron"
	"github.com/saiset-co/sai-gateway-console/health"
	"github.com/saiset-co/sai-gateway-console/mutation"
	"github.com/saiset-co/sai-gateway-console/query"
	"github.com/saiset-co/sai-gateway-console/stream"
	"github.com/saiset-co/sai-gateway-console/types"
)

type SessionState int32

const (
	SessionStateStopped SessionState = iota
	SessionStateStarting
	SessionStateRunning
	SessionStateStopping
)

type Options struct {
	Clock           clock.Clock
	StreamTransport stream.Transport
}

// Session is the data-access layer of one signed-in console. It owns every
// piece of shared request state; nothing is kept at package level.
type Session struct {
	ctx       context.Context
	cancel    context.CancelFunc
	config    *types.ConsoleConfig
	logger    types.Logger
	metrics   types.MetricsManager
	identity  types.IdentityProvider
	client    *client.HTTPClient
	queries   *query.Cache
	mutations *mutation.Controller
	stream    *stream.Client
	cron      *cron.Manager
	health    *health.Manager
	state     atomic.Value

	credMu sync.RWMutex
	token  string
	userID string

	watchMu    sync.Mutex
	watches    map[string]int
	watchEpoch uint64
}

func NewSession(ctx context.Context, config *types.ConsoleConfig, logger types.Logger, metrics types.MetricsManager, identity types.IdentityProvider, opts *Options) (*Session, error) {
	if config == nil || config.API == nil || config.Stream == nil || config.Queries == nil {
		return nil, types.ErrConfigIsNil
	}

	if identity == nil {
		return nil, types.Errorf(types.ErrInvalidParameter, "identity provider is nil")
	}

	var clk clock.Clock
	var transport stream.Transport
	if opts != nil {
		clk = opts.Clock
		transport = opts.StreamTransport
	}
	if clk == nil {
		clk = clock.New()
	}
	if transport == nil {
		transport = stream.NewTransport(config.Stream.Transport)
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	responses := cache.NewResponseCache(logger, clk, &cache.ResponseCacheConfig{
		TTL:        config.API.CacheTTL,
		MaxEntries: config.API.CacheMaxEntries,
		CompactTo:  config.API.CacheCompactTo,
	})

	httpClient := client.NewHTTPClient(sessionCtx, logger, metrics, client.NewState(responses), config.API)
	queries := query.NewCache(sessionCtx, logger, metrics, config.Queries.RefreshTimeout)

	baseURL := httpClient.BaseURL()
	streamPath := config.Stream.Path
	streamClient := stream.NewClient(sessionCtx, logger, metrics, func(token string) string {
		return api.StreamURLFor(baseURL, streamPath, token)
	}, &stream.Options{
		Transport:            transport,
		Clock:                clk,
		BaseDelay:            config.Stream.BaseDelay,
		MaxDelay:             config.Stream.MaxDelay,
		MaxReconnectAttempts: config.Stream.MaxReconnectAttempts,
	})

	session := &Session{
		ctx:       sessionCtx,
		cancel:    cancel,
		config:    config,
		logger:    logger,
		metrics:   metrics,
		identity:  identity,
		client:    httpClient,
		queries:   queries,
		mutations: mutation.NewController(queries, logger, metrics),
		stream:    streamClient,
		cron:      cron.NewManager(sessionCtx, logger, metrics, config.Queries.Timezone, config.Queries.RefreshTimeout),
		health:    health.NewManager(config.Name, logger, health.DefaultCheckTimeout),
		watches:   make(map[string]int),
	}

	session.state.Store(SessionStateStopped)
	session.registerHealthChecks()

	return session, nil
}

// Start resolves the current credentials, starts the refresh scheduler and
// opens the metrics stream.
func (s *Session) Start(ctx context.Context) error {
	if !s.transitionState(SessionStateStopped, SessionStateStarting) {
		return types.ErrServerAlreadyRunning
	}

	token, userID, err := s.resolveCredentials(ctx)
	if err != nil {
		s.state.Store(SessionStateStopped)
		return err
	}

	s.setCredentials(token, userID)

	if err := s.cron.Start(); err != nil {
		s.state.Store(SessionStateStopped)
		return types.WrapError(err, "failed to start refresh scheduler")
	}

	s.stream.Start(token)
	s.state.Store(SessionStateRunning)

	s.logger.Info("Console session started",
		zap.String("api", s.client.BaseURL()),
		zap.Bool("authenticated", token != ""))

	return nil
}

func (s *Session) Stop() error {
	if !s.transitionState(SessionStateRunning, SessionStateStopping) {
		return types.ErrServerNotRunning
	}

	defer func() {
		s.state.Store(SessionStateStopped)
		s.cancel()
	}()

	g := &errgroup.Group{}

	g.Go(func() error {
		s.stream.Close()
		return nil
	})

	g.Go(func() error {
		s.cron.Close()
		return nil
	})

	g.Go(func() error {
		s.queries.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		s.logger.Error("Error during console session shutdown", zap.Error(err))
	}

	s.client.Close()

	s.logger.Info("Console session stopped")
	return nil
}

func (s *Session) IsRunning() bool {
	return s.state.Load().(SessionState) == SessionStateRunning
}

// SignOut forgets the credentials and every piece of data fetched with
// them.
func (s *Session) SignOut() {
	s.setCredentials("", "")

	s.stream.Stop()
	s.client.State().Reset()
	s.queries.Clear()
	s.dropWatches()

	s.logger.Info("Console session signed out")
}

// RefreshCredentials asks the identity provider again. A changed token
// restarts the stream under the new URL.
func (s *Session) RefreshCredentials(ctx context.Context) error {
	token, userID, err := s.resolveCredentials(ctx)
	if err != nil {
		return err
	}

	s.credMu.Lock()
	tokenChanged := token != s.token
	userChanged := userID != s.userID
	s.token = token
	s.userID = userID
	s.credMu.Unlock()

	if userChanged {
		s.client.State().Reset()
		s.queries.Clear()
		s.dropWatches()
		s.logger.Info("Console identity changed")
	}

	if tokenChanged && s.IsRunning() {
		s.stream.Restart(token)
	}

	return nil
}

// Health reports the state of the API client, the stream and the refresh
// scheduler.
func (s *Session) Health(ctx context.Context) types.HealthReport {
	return s.health.Check(ctx)
}

func (s *Session) Routes() *Routes {
	return &Routes{session: s}
}

func (s *Session) APIKeys() *APIKeys {
	return &APIKeys{session: s}
}

func (s *Session) CacheRules() *CacheRules {
	return &CacheRules{session: s}
}

func (s *Session) Analytics() *Analytics {
	return &Analytics{session: s}
}

func (s *Session) Queries() *query.Cache {
	return s.queries
}

func (s *Session) Stream() *stream.Client {
	return s.stream
}

func (s *Session) Requests() *client.State {
	return s.client.State()
}

func (s *Session) UserID() string {
	s.credMu.RLock()
	defer s.credMu.RUnlock()
	return s.userID
}

// Key scopes base to the signed-in user.
func (s *Session) Key(base ...string) query.Key {
	return keyFor(s.UserID(), base...)
}

func keyFor(userID string, base ...string) query.Key {
	return query.UserKey(query.Key(base), userID)
}

func (s *Session) api() (*api.API, error) {
	s.credMu.RLock()
	token := s.token
	s.credMu.RUnlock()

	return api.New(s.client, token)
}

// apiFor binds the current token only while userID is still signed in.
func (s *Session) apiFor(userID string) (*api.API, error) {
	s.credMu.RLock()
	token, current := s.token, s.userID
	s.credMu.RUnlock()

	if current != userID {
		return nil, types.ErrIdentityChanged
	}
	return api.New(s.client, token)
}

// register installs the fetcher of a key owned by userID. A load that
// starts or finishes under another identity fails, so its result is never
// stored under userID's key.
func (s *Session) register(userID string, key query.Key, load func(ctx context.Context, client *api.API) (interface{}, error)) {
	s.queries.Register(key, func(ctx context.Context) (interface{}, error) {
		client, err := s.apiFor(userID)
		if err != nil {
			return nil, err
		}

		value, err := load(ctx, client)
		if err != nil {
			return nil, err
		}

		if s.UserID() != userID {
			s.logger.Debug("Discarded load for a previous identity", zap.Stringer("key", key))
			return nil, types.ErrIdentityChanged
		}
		return value, nil
	})
}

func (s *Session) dropWatches() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	for jobName := range s.watches {
		_ = s.cron.Remove(jobName)
	}
	s.watches = make(map[string]int)
	s.watchEpoch++
}

func (s *Session) resolveCredentials(ctx context.Context) (string, string, error) {
	token, err := s.identity.Token(ctx)
	if err != nil {
		return "", "", types.WrapError(err, "failed to resolve token")
	}

	if token == "" {
		return "", "", nil
	}

	userID, err := s.identity.UserID(ctx)
	if err != nil {
		return "", "", types.WrapError(err, "failed to resolve user")
	}

	return token, userID, nil
}

func (s *Session) setCredentials(token, userID string) {
	s.credMu.Lock()
	s.token = token
	s.userID = userID
	s.credMu.Unlock()
}

func (s *Session) transitionState(from, to SessionState) bool {
	return s.state.CompareAndSwap(from, to)
}
