package cli

import (
	"context"
	"io"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/adapter"
	"github.com/m-mizutani/wandersync/pkg/interfaces"
	"github.com/m-mizutani/wandersync/pkg/memory"
	"github.com/m-mizutani/wandersync/pkg/memory/embedder"
	"github.com/m-mizutani/wandersync/pkg/repository"
	"github.com/m-mizutani/wandersync/pkg/service/mcp"
	"github.com/m-mizutani/wandersync/pkg/tool"
	"github.com/m-mizutani/wandersync/pkg/usecase/chat"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/m-mizutani/wandersync/pkg/vectorindex"
	"github.com/urfave/cli/v3"
)

const (
	providerGemini = "gemini"
	providerClaude = "claude"

	embedderHash = "hash"

	backendChromem   = "chromem"
	backendFirestore = "firestore"
	backendSQLite    = "sqlite"
	backendNone      = "none"
)

// config holds configuration values
type config struct {
	// LLM
	llmProvider     string
	geminiProject   string
	geminiLocation  string
	geminiAPIKey    string
	geminiModel     string
	anthropicAPIKey string
	claudeModel     string

	// Memory
	embedder   string
	dimension  int64
	collection string
	index      string
	chromemDir string

	// History
	history           string
	sqlitePath        string
	firestoreProject  string
	firestoreDatabase string
	transcriptBucket  string
	transcriptPrefix  string

	// Orchestrator
	maxCycles   int64
	timeout     time.Duration
	parallelism int64
	cacheTTL    time.Duration
	mcpConfig   string

	// shared clients, created on first use
	gemini    *adapter.GeminiClient
	firestore *firestore.Client
	closers   []io.Closer
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "LLM used for reasoning (gemini, claude)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("WANDERSYNC_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini on Vertex AI",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (takes precedence over Vertex AI)",
			Sources:     cli.EnvVars("GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKey,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model",
			Sources:     cli.EnvVars("WANDERSYNC_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "anthropic-api-key",
			Usage:       "Anthropic API key",
			Sources:     cli.EnvVars("ANTHROPIC_API_KEY"),
			Destination: &cfg.anthropicAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-model",
			Usage:       "Claude model",
			Sources:     cli.EnvVars("WANDERSYNC_CLAUDE_MODEL"),
			Destination: &cfg.claudeModel,
		},
	}
}

// memoryFlags returns flags of the semantic memory
func memoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedder",
			Usage:       "Embedding function (gemini, hash)",
			Value:       providerGemini,
			Sources:     cli.EnvVars("WANDERSYNC_EMBEDDER"),
			Destination: &cfg.embedder,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding dimension",
			Value:       embedder.DefaultDimension,
			Sources:     cli.EnvVars("WANDERSYNC_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.StringFlag{
			Name:        "collection",
			Usage:       "Vector collection name of the memory",
			Value:       memory.DefaultCollection,
			Sources:     cli.EnvVars("WANDERSYNC_MEMORY_COLLECTION"),
			Destination: &cfg.collection,
		},
		&cli.StringFlag{
			Name:        "index",
			Usage:       "Vector index backend (chromem, firestore)",
			Value:       backendChromem,
			Sources:     cli.EnvVars("WANDERSYNC_VECTOR_INDEX"),
			Destination: &cfg.index,
		},
		&cli.StringFlag{
			Name:        "chromem-dir",
			Usage:       "Directory to persist the chromem index. Empty keeps it in memory",
			Value:       ".wandersync/memory",
			Sources:     cli.EnvVars("WANDERSYNC_CHROMEM_DIR"),
			Destination: &cfg.chromemDir,
		},
	}
}

// historyFlags returns flags of raw chat logs and transcripts
func historyFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "history",
			Usage:       "History backend (sqlite, firestore, none)",
			Value:       backendSQLite,
			Sources:     cli.EnvVars("WANDERSYNC_HISTORY"),
			Destination: &cfg.history,
		},
		&cli.StringFlag{
			Name:        "sqlite-path",
			Usage:       "SQLite database file of the history",
			Value:       ".wandersync/history.db",
			Sources:     cli.EnvVars("WANDERSYNC_SQLITE_PATH"),
			Destination: &cfg.sqlitePath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID of Firestore",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "transcript-bucket",
			Usage:       "Cloud Storage bucket to save conversation transcripts",
			Sources:     cli.EnvVars("WANDERSYNC_TRANSCRIPT_BUCKET"),
			Destination: &cfg.transcriptBucket,
		},
		&cli.StringFlag{
			Name:        "transcript-prefix",
			Usage:       "Object prefix of transcripts",
			Sources:     cli.EnvVars("WANDERSYNC_TRANSCRIPT_PREFIX"),
			Destination: &cfg.transcriptPrefix,
		},
	}
}

// orchestratorFlags returns flags of the turn loop and capability calls
func orchestratorFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "max-cycles",
			Usage:       "Maximum capability rounds per question",
			Value:       chat.DefaultMaxCycles,
			Sources:     cli.EnvVars("WANDERSYNC_MAX_CYCLES"),
			Destination: &cfg.maxCycles,
		},
		&cli.DurationFlag{
			Name:        "capability-timeout",
			Usage:       "Timeout of a single capability call",
			Value:       tool.DefaultTimeout,
			Sources:     cli.EnvVars("WANDERSYNC_CAPABILITY_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.IntFlag{
			Name:        "parallelism",
			Usage:       "Maximum concurrent capability calls",
			Value:       tool.DefaultParallelism,
			Sources:     cli.EnvVars("WANDERSYNC_PARALLELISM"),
			Destination: &cfg.parallelism,
		},
		&cli.DurationFlag{
			Name:        "cache-ttl",
			Usage:       "TTL of cached capability results. 0 disables the cache",
			Value:       5 * time.Minute,
			Sources:     cli.EnvVars("WANDERSYNC_CACHE_TTL"),
			Destination: &cfg.cacheTTL,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "Path to MCP servers configuration file (YAML)",
			Sources:     cli.EnvVars("WANDERSYNC_MCP_CONFIG"),
			Destination: &cfg.mcpConfig,
		},
	}
}

// Close releases every client created from the config
func (cfg *config) Close() {
	for i := len(cfg.closers) - 1; i >= 0; i-- {
		if err := cfg.closers[i].Close(); err != nil {
			logging.Default().Warn("failed to close client", "error", err)
		}
	}
	cfg.closers = nil
}

// newGemini creates the Gemini client once
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiClient, error) {
	if cfg.gemini != nil {
		return cfg.gemini, nil
	}

	opts := []adapter.GeminiOption{
		adapter.WithEmbeddingDimension(int(cfg.dimension)),
	}
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}

	var (
		client *adapter.GeminiClient
		err    error
	)
	switch {
	case cfg.geminiAPIKey != "":
		client, err = adapter.NewGeminiWithAPIKey(ctx, cfg.geminiAPIKey, opts...)
	case cfg.geminiProject != "":
		if cfg.geminiLocation == "" {
			return nil, goerr.New("gemini-location is required")
		}
		client, err = adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	default:
		return nil, goerr.New("gemini-api-key or gemini-project is required")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}

	cfg.gemini = client
	return client, nil
}

// newReasoner creates the LLM selected by llm-provider
func (cfg *config) newReasoner(ctx context.Context) (interfaces.Reasoner, error) {
	switch cfg.llmProvider {
	case providerGemini:
		return cfg.newGemini(ctx)

	case providerClaude:
		if cfg.anthropicAPIKey == "" {
			return nil, goerr.New("anthropic-api-key is required")
		}
		var opts []adapter.ClaudeOption
		if cfg.claudeModel != "" {
			opts = append(opts, adapter.WithClaudeModel(cfg.claudeModel))
		}
		return adapter.NewClaude(cfg.anthropicAPIKey, opts...), nil

	default:
		return nil, goerr.New("unsupported llm provider", goerr.V("provider", cfg.llmProvider))
	}
}

// newTranscriber returns Gemini when it is configured, or nil
func (cfg *config) newTranscriber(ctx context.Context) interfaces.Transcriber {
	if cfg.geminiAPIKey == "" && cfg.geminiProject == "" {
		return nil
	}
	client, err := cfg.newGemini(ctx)
	if err != nil {
		logging.From(ctx).Warn("audio input disabled", "error", err)
		return nil
	}
	return client
}

func (cfg *config) newEmbedder(ctx context.Context) (interfaces.Embedder, error) {
	switch cfg.embedder {
	case providerGemini:
		return cfg.newGemini(ctx)
	case embedderHash:
		return embedder.NewHash(int(cfg.dimension)), nil
	default:
		return nil, goerr.New("unsupported embedder", goerr.V("embedder", cfg.embedder))
	}
}

// newFirestore creates the Firestore client once; history and vector index share it
func (cfg *config) newFirestore(ctx context.Context) (*firestore.Client, error) {
	if cfg.firestore != nil {
		return cfg.firestore, nil
	}
	if cfg.firestoreProject == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.firestoreDatabase == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client")
	}
	cfg.firestore = repo.Client()
	cfg.closers = append(cfg.closers, repo)
	return cfg.firestore, nil
}

func (cfg *config) newVectorIndex(ctx context.Context) (interfaces.VectorIndex, error) {
	switch cfg.index {
	case backendChromem:
		if cfg.chromemDir == "" {
			return vectorindex.NewChromem(), nil
		}
		return vectorindex.NewPersistentChromem(cfg.chromemDir)

	case backendFirestore:
		client, err := cfg.newFirestore(ctx)
		if err != nil {
			return nil, err
		}
		return vectorindex.NewFirestore(client), nil

	default:
		return nil, goerr.New("unsupported vector index", goerr.V("index", cfg.index))
	}
}

// newMemory creates the semantic memory store
func (cfg *config) newMemory(ctx context.Context) (*memory.Store, error) {
	emb, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	index, err := cfg.newVectorIndex(ctx)
	if err != nil {
		return nil, err
	}

	return memory.New(index, emb,
		memory.WithCollection(cfg.collection),
		memory.WithDimension(int(cfg.dimension)),
	), nil
}

// newHistory creates the raw history repository. It returns nil for "none".
func (cfg *config) newHistory(ctx context.Context) (interfaces.HistoryRepository, error) {
	switch cfg.history {
	case backendSQLite:
		repo, err := repository.NewSQLite(cfg.sqlitePath)
		if err != nil {
			return nil, err
		}
		cfg.closers = append(cfg.closers, repo)
		return repo, nil

	case backendFirestore:
		client, err := cfg.newFirestore(ctx)
		if err != nil {
			return nil, err
		}
		return repository.NewFirestoreWithClient(client), nil

	case backendNone, "":
		return nil, nil

	default:
		return nil, goerr.New("unsupported history backend", goerr.V("history", cfg.history))
	}
}

// newStorage creates the transcript storage, or nil when no bucket is given
func (cfg *config) newStorage(ctx context.Context) (adapter.Storage, error) {
	if cfg.transcriptBucket == "" {
		return nil, nil
	}

	storage, err := adapter.NewStorage(ctx, cfg.transcriptBucket, cfg.transcriptPrefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage")
	}
	return storage, nil
}

// newRegistry builds the capability registry from the built-in tools and the
// configured MCP servers
func (cfg *config) newRegistry(ctx context.Context, tools []tool.Tool, store *memory.Store) (*tool.Registry, error) {
	provider, err := mcp.LoadAndConnect(ctx, cfg.mcpConfig)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load MCP servers")
	}
	if provider != nil {
		tools = append(tools, provider)
		cfg.closers = append(cfg.closers, provider)
	}

	opts := []tool.Option{
		tool.WithTimeout(cfg.timeout),
		tool.WithParallelism(int(cfg.parallelism)),
	}
	if cfg.cacheTTL > 0 {
		cache, err := tool.NewCache(1000)
		if err != nil {
			return nil, err
		}
		opts = append(opts, tool.WithCache(cache, cfg.cacheTTL))
	}

	registry := tool.New(tools, opts...)
	if err := registry.Init(ctx, &tool.Client{Memory: store}); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize capabilities")
	}
	logging.From(ctx).Debug("capabilities ready", "tools", registry.EnabledTools())
	return registry, nil
}

// newUseCase wires every component of the assistant
func (cfg *config) newUseCase(ctx context.Context, tools []tool.Tool) (*chat.UseCase, error) {
	reasoner, err := cfg.newReasoner(ctx)
	if err != nil {
		return nil, err
	}

	store, err := cfg.newMemory(ctx)
	if err != nil {
		return nil, err
	}

	registry, err := cfg.newRegistry(ctx, tools, store)
	if err != nil {
		return nil, err
	}

	opts := []chat.Option{
		chat.WithMaxCycles(int(cfg.maxCycles)),
	}

	history, err := cfg.newHistory(ctx)
	if err != nil {
		return nil, err
	}
	if history != nil {
		opts = append(opts, chat.WithHistory(history))
	}

	storage, err := cfg.newStorage(ctx)
	if err != nil {
		return nil, err
	}
	if storage != nil {
		opts = append(opts, chat.WithStorage(storage))
	}

	if t := cfg.newTranscriber(ctx); t != nil {
		opts = append(opts, chat.WithTranscriber(t))
	}

	return chat.New(reasoner, registry, store, opts...), nil
}
