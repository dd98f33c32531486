package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/wandersync/pkg/model"
	"github.com/m-mizutani/wandersync/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout bounds a single capability call
	DefaultTimeout = 10 * time.Second

	// DefaultParallelism bounds concurrent calls within one batch
	DefaultParallelism = 4
)

// Registry manages available capabilities for the reasoning step. It holds
// no call budget; rate policy is left to the system prompt.
type Registry struct {
	tools    map[string]Tool
	specs    map[string]*model.CapabilitySpec
	allTools []Tool
	enabled  []Tool

	timeout     time.Duration
	parallelism int
	cache       *ristretto.Cache
	cacheTTL    time.Duration
}

// Option configures Registry
type Option func(*Registry)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithParallelism sets how many calls of one batch run at the same time
func WithParallelism(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithCache enables a result cache for cacheable capabilities
func WithCache(cache *ristretto.Cache, ttl time.Duration) Option {
	return func(r *Registry) {
		r.cache = cache
		r.cacheTTL = ttl
	}
}

// NewCache creates a result cache sized for maxEntries results
func NewCache(maxEntries int64) (*ristretto.Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create capability cache", goerr.V("max_entries", maxEntries))
	}
	return cache, nil
}

// New creates a new registry with the given tools. All tools are enabled
// until Init is called.
func New(tools []Tool, opts ...Option) *Registry {
	r := &Registry{
		allTools:    tools,
		timeout:     DefaultTimeout,
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.register(tools)
	return r
}

func (r *Registry) register(tools []Tool) {
	r.tools = make(map[string]Tool)
	r.specs = make(map[string]*model.CapabilitySpec)
	r.enabled = tools

	for _, t := range tools {
		for _, spec := range t.Specs() {
			if _, exists := r.tools[spec.Name]; exists {
				logging.Default().Warn("duplicate capability name, ignored", "capability", spec.Name)
				continue
			}
			r.tools[spec.Name] = t
			r.specs[spec.Name] = spec
		}
	}
}

// Init initializes every tool and keeps only the enabled ones
func (r *Registry) Init(ctx context.Context, client *Client) error {
	var enabled []Tool
	for _, t := range r.allTools {
		ok, err := t.Init(ctx, client)
		if err != nil {
			return goerr.Wrap(err, "failed to initialize tool", goerr.V("tool", fmt.Sprintf("%T", t)))
		}
		if ok {
			enabled = append(enabled, t)
		}
	}

	r.register(enabled)
	logging.From(ctx).Debug("capabilities initialized", "enabled", r.EnabledTools())
	return nil
}

// Specs returns specifications of enabled capabilities ordered by name
func (r *Registry) Specs() []*model.CapabilitySpec {
	specs := make([]*model.CapabilitySpec, 0, len(r.specs))
	for _, spec := range r.specs {
		specs = append(specs, spec)
	}
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Name < specs[j].Name
	})
	return specs
}

// EnabledTools returns the names of enabled capabilities ordered by name
func (r *Registry) EnabledTools() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.enabled {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Flags returns all tool flags combined
func (r *Registry) Flags() []cli.Flag {
	var flags []cli.Flag
	for _, t := range r.allTools {
		if toolFlags := t.Flags(); toolFlags != nil {
			flags = append(flags, toolFlags...)
		}
	}
	return flags
}

type outcome struct {
	payload any
	err     error
}

var errPanicked = goerr.New("capability panicked")

// Invoke runs one capability request. It never fails: unknown names,
// execution errors, timeouts and panics all become an error result.
func (r *Registry) Invoke(ctx context.Context, req *model.CapabilityRequest) *model.CapabilityResult {
	logger := logging.From(ctx).With("capability", req.Name, "correlation_id", req.ID)

	t, ok := r.tools[req.Name]
	if !ok {
		logger.Warn("unknown capability requested")
		return model.NewCapabilityError(req, "unknown capability: %s", req.Name)
	}

	cacheKey := ""
	if r.cache != nil && isCacheable(t) {
		cacheKey = buildCacheKey(req)
		if v, found := r.cache.Get(cacheKey); found {
			logger.Debug("capability cache hit")
			return model.NewCapabilityPayload(req, v)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- outcome{err: goerr.Wrap(errPanicked, "recovered", goerr.V("panic", fmt.Sprint(rec)))}
			}
		}()
		payload, err := t.Execute(callCtx, req.Name, req.Args)
		ch <- outcome{payload: payload, err: err}
	}()

	var out outcome
	select {
	case out = <-ch:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			logger.Warn("capability cancelled", "elapsed", time.Since(started))
			return model.NewCapabilityError(req, "capability %s cancelled", req.Name)
		}
		logger.Warn("capability timed out", "elapsed", time.Since(started), "timeout", r.timeout)
		return model.NewCapabilityError(req, "capability %s timed out after %s", req.Name, r.timeout)
	}

	elapsed := time.Since(started)
	if out.err != nil {
		if errors.Is(out.err, errPanicked) {
			logger.Error("capability panicked", "error", out.err, "elapsed", elapsed)
			return model.NewCapabilityError(req, "capability %s panicked", req.Name)
		}
		if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			logger.Warn("capability timed out", "elapsed", elapsed, "timeout", r.timeout)
			return model.NewCapabilityError(req, "capability %s timed out after %s", req.Name, r.timeout)
		}
		logger.Warn("capability failed", "error", out.err, "elapsed", elapsed)
		return model.NewCapabilityError(req, "%s", out.err.Error())
	}

	logger.Debug("capability done", "elapsed", elapsed)
	if cacheKey != "" {
		r.cache.SetWithTTL(cacheKey, out.payload, 1, r.cacheTTL)
	}
	return model.NewCapabilityPayload(req, out.payload)
}

// InvokeBatch runs independent requests concurrently and returns results in
// the order of reqs.
func (r *Registry) InvokeBatch(ctx context.Context, reqs []*model.CapabilityRequest) []*model.CapabilityResult {
	results := make([]*model.CapabilityResult, len(reqs))

	var eg errgroup.Group
	if r.parallelism > 0 {
		eg.SetLimit(r.parallelism)
	}
	for i, req := range reqs {
		eg.Go(func() error {
			results[i] = r.Invoke(ctx, req)
			return nil
		})
	}
	_ = eg.Wait()

	return results
}

// buildCacheKey identifies a request by name and canonical arguments.
// encoding/json sorts map keys, which makes the encoding canonical.
func buildCacheKey(req *model.CapabilityRequest) string {
	raw, err := json.Marshal(req.Args)
	if err != nil {
		return ""
	}
	return req.Name + "\x00" + string(raw)
}
