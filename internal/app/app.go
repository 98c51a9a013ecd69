// Package app wires configuration, the model runtime, storage, and the
// agent into a running application. Commands call Setup once and hand
// the resulting App to the surface they serve.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnymontana/memory-graph-workshop/internal/agent"
	"github.com/johnymontana/memory-graph-workshop/internal/config"
	"github.com/johnymontana/memory-graph-workshop/internal/content"
	"github.com/johnymontana/memory-graph-workshop/internal/database"
	"github.com/johnymontana/memory-graph-workshop/internal/graph"
	"github.com/johnymontana/memory-graph-workshop/internal/log"
	"github.com/johnymontana/memory-graph-workshop/internal/memory"
	"github.com/johnymontana/memory-graph-workshop/internal/preferences"
	"github.com/johnymontana/memory-graph-workshop/internal/tools"
)

// Options tweak Setup beyond what the config file carries.
type Options struct {
	// Demo runs without PostgreSQL: an in-memory graph store and a
	// fixed sample article set.
	Demo bool
}

// App holds the wired application.
type App struct {
	Config *config.Config
	Logger log.Logger
	Genkit *genkit.Genkit
	Agent  *agent.Agent
	Repo   *memory.Repository
	Prefs  *preferences.Store
	Source content.Source

	pool *pgxpool.Pool
}

// Setup builds the full application from configuration.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger, opts Options) (*App, error) {
	g, modelName, smallModelName, err := initGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		pool   *pgxpool.Pool
		store  graph.Store
		source content.Source
	)
	if opts.Demo {
		store = graph.NewMemStore()
		source = content.NewStaticSource(content.SampleArticles())
		logger.Info("running in demo mode, no database configured")
	} else {
		pool, err = database.Connect(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		store = graph.NewPostgresStore(pool)
		source = content.NewPostgresSource(pool, provideEmbedder(g, cfg))
	}

	repo := memory.NewRepository(store, logger)

	var prefs *preferences.Store
	var extractor *preferences.Extractor
	if cfg.Memory.Enabled {
		prefs = preferences.NewStore(store, preferences.DefaultPolicy(), logger)
		extractor = preferences.NewExtractor(g, smallModelName, logger)
	}

	registry := tools.NewRegistry(tools.Catalog(source, tools.NewGenkitQueryGenerator(g, modelName)))
	toolRefs := tools.DefineAll(g, registry)

	ag := agent.New(g, repo, prefs, extractor, registry, toolRefs, logger, agent.Options{
		Model:              modelName,
		SmallModel:         smallModelName,
		MaxIterations:      cfg.Agent.MaxIterations,
		ToolRetries:        cfg.Agent.ToolRetries,
		RecentWindow:       cfg.Memory.RecentWindow,
		SummarizeThreshold: cfg.Memory.SummarizeThreshold,
		RequestsPerMin:     cfg.Agent.RequestsPerMin,
		LLMTimeout:         60 * time.Second,
	})

	return &App{
		Config: cfg,
		Logger: logger,
		Genkit: g,
		Agent:  ag,
		Repo:   repo,
		Prefs:  prefs,
		Source: source,
		pool:   pool,
	}, nil
}

// Close waits for background memory work and releases the pool.
func (a *App) Close() {
	a.Agent.Wait()
	if a.pool != nil {
		a.pool.Close()
	}
}

// initGenkit starts the model runtime for the configured provider and
// returns the fully qualified model names.
func initGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, string, string, error) {
	small := cfg.LLM.SmallModel
	if small == "" {
		small = cfg.LLM.Model
	}

	switch cfg.LLM.Provider {
	case "ollama":
		plugin := &ollama.Ollama{ServerAddress: cfg.LLM.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, "", "", errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no model auto-discovery.
		for _, name := range dedupe(cfg.LLM.Model, small) {
			plugin.DefineModel(g, ollama.ModelDefinition{Name: name, Type: "chat"}, nil)
		}
		if cfg.LLM.Embedder != "" {
			plugin.DefineEmbedder(g, cfg.LLM.OllamaHost, cfg.LLM.Embedder, nil)
		}
		return g, "ollama/" + cfg.LLM.Model, "ollama/" + small, nil

	default: // googleai
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, "", "", errors.New("initializing genkit with googleai provider")
		}
		return g, "googleai/" + cfg.LLM.Model, "googleai/" + small, nil
	}
}

// provideEmbedder returns the embedder for vector search, or nil when
// the provider has none configured.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) content.Embedder {
	if cfg.LLM.Embedder == "" {
		return nil
	}
	switch cfg.LLM.Provider {
	case "ollama":
		return content.NewGenkitEmbedder(ollama.Embedder(g, cfg.LLM.OllamaHost))
	default:
		return content.NewGenkitEmbedder(googlegenai.GoogleAIEmbedder(g, cfg.LLM.Embedder))
	}
}

func dedupe(names ...string) []string {
	seen := make(map[string]bool, len(names))
	out := names[:0]
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
