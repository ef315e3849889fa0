package core

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/learnware/studyctx/pkg/builder"
	"github.com/learnware/studyctx/pkg/cache"
	"github.com/learnware/studyctx/pkg/knowledge"
	"github.com/learnware/studyctx/pkg/memory"
	"github.com/learnware/studyctx/pkg/optimizer"
	"github.com/learnware/studyctx/pkg/storage"
	mysqlStore "github.com/learnware/studyctx/pkg/storage/mysql"
	postgresStore "github.com/learnware/studyctx/pkg/storage/postgres"
	sqliteStore "github.com/learnware/studyctx/pkg/storage/sqlite"
)

// Client is the main studyctx client. It wires the conversation memory
// store, the knowledge base, the context builder and the context
// optimizer on top of one row store and exposes their combined surface.
//
// The client is thread-safe and can be used concurrently from multiple
// goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	result, _ := client.StoreMemory(ctx, &memory.StoreRequest{
//	    UserID: "user_001",
//	    Type:   memory.TypeLearningInteraction,
//	    Interaction: memory.Interaction{
//	        Content: "photosynthesis converts light into energy",
//	        Topic:   "photosynthesis",
//	    },
//	})
type Client struct {
	// config contains the client configuration.
	config *Config

	// store is the row store shared by every service.
	store storage.Store

	// memories is the conversation memory service.
	memories *memory.Store

	// knowledge is the knowledge base service.
	knowledge *knowledge.Base

	// builder assembles grounding contexts.
	builder *builder.Builder

	// optimizer forces contexts under token limits.
	optimizer *optimizer.Optimizer

	// mu protects Close against concurrent use.
	mu sync.Mutex

	closed bool
}

// ClientOption configures a Client beyond what Config covers.
type ClientOption func(*clientOptions)

type clientOptions struct {
	store    storage.Store
	activity builder.ActivityProvider
	cache    cache.Cache
	clock    func() time.Time
	logger   *logrus.Logger
	policy   *memory.ScoringPolicy
}

// WithStore injects a pre-built row store, bypassing provider
// initialization from the configuration. Mainly for tests.
func WithStore(st storage.Store) ClientOption {
	return func(o *clientOptions) { o.store = st }
}

// WithCache shares one cache implementation across the knowledge,
// builder and optimizer services instead of per-service TTL caches.
func WithCache(c cache.Cache) ClientOption {
	return func(o *clientOptions) { o.cache = c }
}

// WithActivityProvider supplies the raw activity source the student
// profile is derived from. Without one, built contexts carry a minimal
// profile.
func WithActivityProvider(p builder.ActivityProvider) ClientOption {
	return func(o *clientOptions) { o.activity = p }
}

// WithClock overrides the time source for every service.
func WithClock(fn func() time.Time) ClientOption {
	return func(o *clientOptions) { o.clock = fn }
}

// WithLogger sets the logger for every service.
func WithLogger(logger *logrus.Logger) ClientOption {
	return func(o *clientOptions) { o.logger = logger }
}

// WithScoringPolicy overrides the memory scoring weights.
func WithScoringPolicy(policy memory.ScoringPolicy) ClientOption {
	return func(o *clientOptions) { o.policy = &policy }
}

// NewClient creates a new studyctx client from the configuration.
func NewClient(cfg *Config, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		return nil, NewError("NewClient", ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var options clientOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.clock == nil {
		options.clock = time.Now
	}
	if options.logger == nil {
		options.logger = logrus.StandardLogger()
	}

	store := options.store
	if store == nil {
		var err error
		store, err = initStorage(&cfg.Database)
		if err != nil {
			return nil, NewError("NewClient", err)
		}
	}

	policy := memory.DefaultScoringPolicy()
	if options.policy != nil {
		policy = *options.policy
	}
	if cfg.Memory.SimilarityThreshold > 0 {
		policy.SimilarityThreshold = cfg.Memory.SimilarityThreshold
	}

	memoryOpts := []memory.Option{
		memory.WithClock(options.clock),
		memory.WithLogger(options.logger),
		memory.WithScoringPolicy(policy),
	}
	if cfg.Memory.CleanupInterval > 0 {
		memoryOpts = append(memoryOpts, memory.WithCleanupInterval(cfg.Memory.CleanupInterval))
	}
	memories, err := memory.NewStore(store, memoryOpts...)
	if err != nil {
		return nil, NewError("NewClient", err)
	}

	knowledgeOpts := []knowledge.Option{
		knowledge.WithClock(options.clock),
		knowledge.WithLogger(options.logger),
	}
	if cfg.Cache.KnowledgeTTL > 0 {
		knowledgeOpts = append(knowledgeOpts, knowledge.WithSearchTTL(cfg.Cache.KnowledgeTTL))
	}
	if options.cache != nil {
		knowledgeOpts = append(knowledgeOpts, knowledge.WithCache(options.cache))
	} else if cfg.Cache.KnowledgeTTL > 0 {
		knowledgeOpts = append(knowledgeOpts, knowledge.WithCache(cache.NewTTLCache(cfg.Cache.KnowledgeTTL)))
	}
	kb, err := knowledge.NewBase(store, knowledgeOpts...)
	if err != nil {
		return nil, NewError("NewClient", err)
	}

	builderOpts := []builder.Option{
		builder.WithClock(options.clock),
		builder.WithLogger(options.logger),
	}
	if cfg.Cache.ProfileTTL > 0 {
		builderOpts = append(builderOpts, builder.WithProfileTTL(cfg.Cache.ProfileTTL))
	}
	if options.cache != nil {
		builderOpts = append(builderOpts, builder.WithCache(options.cache))
	} else if cfg.Cache.ProfileTTL > 0 {
		builderOpts = append(builderOpts, builder.WithCache(cache.NewTTLCache(cfg.Cache.ProfileTTL)))
	}
	ctxBuilder := builder.New(memories, kb, options.activity, builderOpts...)

	optimizerOpts := []optimizer.Option{
		optimizer.WithLogger(options.logger),
	}
	if cfg.Cache.OptimizerTTL > 0 {
		optimizerOpts = append(optimizerOpts, optimizer.WithResultTTL(cfg.Cache.OptimizerTTL))
	}
	if options.cache != nil {
		optimizerOpts = append(optimizerOpts, optimizer.WithCache(options.cache))
	} else if cfg.Cache.OptimizerTTL > 0 {
		optimizerOpts = append(optimizerOpts, optimizer.WithCache(cache.NewTTLCache(cfg.Cache.OptimizerTTL)))
	}
	ctxOptimizer := optimizer.New(optimizerOpts...)

	return &Client{
		config:    cfg,
		store:     store,
		memories:  memories,
		knowledge: kb,
		builder:   ctxBuilder,
		optimizer: ctxOptimizer,
	}, nil
}

// initStorage creates a row store from the database configuration.
func initStorage(cfg *DatabaseConfig) (storage.Store, error) {
	switch cfg.Provider {
	case "sqlite":
		return sqliteStore.NewClient(&sqliteStore.Config{
			DBPath: getStringOption(cfg.Config, "db_path", "./studyctx.db"),
		})
	case "postgres":
		return postgresStore.NewClient(&postgresStore.Config{
			Host:     getStringOption(cfg.Config, "host", "localhost"),
			Port:     getIntOption(cfg.Config, "port", 5432),
			User:     getStringOption(cfg.Config, "user", "postgres"),
			Password: getStringOption(cfg.Config, "password", ""),
			DBName:   getStringOption(cfg.Config, "db_name", "studyctx"),
			SSLMode:  getStringOption(cfg.Config, "ssl_mode", "disable"),
		})
	case "mysql":
		return mysqlStore.NewClient(&mysqlStore.Config{
			Host:     getStringOption(cfg.Config, "host", "127.0.0.1"),
			Port:     getIntOption(cfg.Config, "port", 3306),
			User:     getStringOption(cfg.Config, "user", "root"),
			Password: getStringOption(cfg.Config, "password", ""),
			DBName:   getStringOption(cfg.Config, "db_name", "studyctx"),
		})
	default:
		return nil, ErrInvalidConfig
	}
}

func getStringOption(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return defaultValue
}

func getIntOption(m map[string]interface{}, key string, defaultValue int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return defaultValue
}

// Memories exposes the conversation memory service.
func (c *Client) Memories() *memory.Store { return c.memories }

// Knowledge exposes the knowledge base service.
func (c *Client) Knowledge() *knowledge.Base { return c.knowledge }

// Builder exposes the context builder.
func (c *Client) Builder() *builder.Builder { return c.builder }

// Optimizer exposes the context optimizer.
func (c *Client) Optimizer() *optimizer.Optimizer { return c.optimizer }

// StoreMemory scores and persists a new memory.
func (c *Client) StoreMemory(ctx context.Context, req *memory.StoreRequest) (*memory.StoreResult, error) {
	return c.memories.StoreMemory(ctx, req)
}

// SearchMemories filters, scores and ranks a user's memories.
func (c *Client) SearchMemories(ctx context.Context, req *memory.SearchRequest) ([]*memory.SearchResult, error) {
	return c.memories.SearchMemories(ctx, req)
}

// LinkMemories connects two memories.
func (c *Client) LinkMemories(ctx context.Context, req *memory.LinkRequest) (*memory.Memory, error) {
	return c.memories.LinkMemories(ctx, req)
}

// OptimizeMemories runs one maintenance pass over a user's memories.
func (c *Client) OptimizeMemories(ctx context.Context, req *memory.OptimizeRequest) (*memory.OptimizeResult, error) {
	return c.memories.OptimizeMemories(ctx, req)
}

// GetMemoryAnalytics summarizes a user's memory corpus.
func (c *Client) GetMemoryAnalytics(ctx context.Context, userID string, timeRange *memory.TimeRange) (*memory.Analytics, error) {
	return c.memories.GetMemoryAnalytics(ctx, userID, timeRange)
}

// UpdateMemoryQuality blends user feedback into a memory's quality score.
func (c *Client) UpdateMemoryQuality(ctx context.Context, id int64, feedback *memory.QualityFeedback) (*memory.Memory, error) {
	return c.memories.UpdateMemoryQuality(ctx, id, feedback)
}

// RecordAccess bumps a memory's access counter.
func (c *Client) RecordAccess(ctx context.Context, id int64) error {
	return c.memories.RecordAccess(ctx, id)
}

// SearchKnowledge scores stored knowledge entries against a query.
func (c *Client) SearchKnowledge(ctx context.Context, query string, filters *knowledge.SearchFilters) ([]*knowledge.SearchHit, error) {
	return c.knowledge.SearchKnowledge(ctx, query, filters)
}

// ValidateFact checks a claim against the knowledge corpus.
func (c *Client) ValidateFact(ctx context.Context, req *knowledge.ValidationRequest) (*knowledge.ValidationResult, error) {
	return c.knowledge.ValidateFact(ctx, req)
}

// AddEntry persists a new knowledge entry.
func (c *Client) AddEntry(ctx context.Context, entry *knowledge.Entry) (*knowledge.Entry, error) {
	return c.knowledge.AddEntry(ctx, entry)
}

// AddSource registers a new educational source.
func (c *Client) AddSource(ctx context.Context, src *knowledge.Source) (*knowledge.Source, error) {
	return c.knowledge.AddSource(ctx, src)
}

// UpdateSourceVerification mutates a source's verification fields.
func (c *Client) UpdateSourceVerification(ctx context.Context, id int64, status string, reliability float64) (*knowledge.Source, error) {
	return c.knowledge.UpdateSourceVerification(ctx, id, status, reliability)
}

// GetRelatedFacts resolves an entry's relations into entries.
func (c *Client) GetRelatedFacts(ctx context.Context, entryID int64) ([]*knowledge.Entry, error) {
	return c.knowledge.GetRelatedFacts(ctx, entryID)
}

// AddRelation records a typed edge between two knowledge entries.
func (c *Client) AddRelation(ctx context.Context, entryID, relatedID int64, relationType string) (*knowledge.Relation, error) {
	return c.knowledge.AddRelation(ctx, entryID, relatedID, relationType)
}

// GetStatistics computes corpus-wide knowledge statistics.
func (c *Client) GetStatistics(ctx context.Context) (*knowledge.Statistics, error) {
	return c.knowledge.GetStatistics(ctx)
}

// BuildContext assembles a grounding context at the requested level.
func (c *Client) BuildContext(ctx context.Context, req *builder.BuildRequest) (*builder.EnhancedContext, error) {
	if req != nil && req.TokenLimit <= 0 {
		if _, ok := builder.Levels[req.Level]; !ok {
			req.TokenLimit = c.config.Context.DefaultTokenLimit
		}
	}
	return c.builder.BuildContext(ctx, req)
}

// OptimizeContext forces an assembled context under a token limit.
func (c *Client) OptimizeContext(ctx context.Context, req *optimizer.OptimizeRequest) (*optimizer.Result, error) {
	return c.optimizer.OptimizeContext(ctx, req)
}

// AllocateTokenBudget exposes the optimizer's per-component budget split.
func (c *Client) AllocateTokenBudget(tokenLimit int, strategy optimizer.Strategy) optimizer.Budget {
	return optimizer.AllocateTokenBudget(tokenLimit, strategy)
}

// StartCleanup starts the scheduled memory expiry sweep.
func (c *Client) StartCleanup() error {
	return c.memories.StartCleanup()
}

// StopCleanup stops the scheduled memory expiry sweep.
func (c *Client) StopCleanup() error {
	return c.memories.StopCleanup()
}

// Close stops background work and releases the row store. Safe to call
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	// memories.Close shuts the cleanup scheduler down and closes the
	// shared store.
	return c.memories.Close()
}
