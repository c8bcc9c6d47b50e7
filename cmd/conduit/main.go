// Binary conduit serves the request router over stdio: newline-delimited
// JSON requests on stdin, one JSON response per line on stdout. Both MCP
// JSON-RPC traffic and agent-mode envelopes go through the same pipe.
//
// Usage in .mcp.json:
//
//	{
//	  "mcpServers": {
//	    "conduit": {
//	      "type": "stdio",
//	      "command": "conduit"
//	    }
//	  }
//	}
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	conduit "github.com/conduitframe/conduit"
	"github.com/conduitframe/conduit/internal/config"
	"github.com/conduitframe/conduit/mcp"
	"github.com/conduitframe/conduit/observer"
	"github.com/conduitframe/conduit/provider/resolve"
)

func main() {
	// stdout carries protocol traffic; everything else goes to stderr.
	log.SetOutput(os.Stderr)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg := config.Load(os.Getenv("CONDUIT_CONFIG"))

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
		for model, p := range cfg.Observer.Pricing {
			pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
		}
		var shutdown func(context.Context) error
		var err error
		inst, shutdown, err = observer.Init(ctx, pricing)
		if err != nil {
			log.Fatalf("conduit: observer init: %v", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
		}()
	}

	tools := conduit.NewToolRegistry()
	registerBuiltinTools(tools)

	var dispatcher conduit.ToolDispatcher = tools
	if inst != nil {
		dispatcher = observer.WrapDispatcher(tools, inst)
	}

	resources := conduit.NewResourceReader()
	prompts := conduit.NewPromptRegistry()

	var rpc conduit.RPCHandler = mcp.NewHandler(cfg.Server.Name, cfg.Server.Version, dispatcher,
		mcp.WithResources(resources),
		mcp.WithPrompts(prompts),
		mcp.WithToolListCache(
			conduit.NewToolListCache(time.Duration(cfg.Cache.TTLSeconds)*time.Second, cfg.Cache.MaxEntries),
			cfg.Provider.Name+"/"+cfg.Provider.Model,
		),
		mcp.WithLogger(logger),
	)
	if inst != nil {
		rpc = observer.WrapHandler(rpc, inst)
	}

	factory := func(model, apiKey string) (conduit.Provider, error) {
		p, err := resolve.Provider(resolve.Config{
			Provider:   cfg.Provider.Name,
			APIKey:     apiKey,
			Model:      model,
			BaseURL:    cfg.Provider.BaseURL,
			APIVersion: cfg.Provider.APIVersion,
		})
		if err != nil {
			return nil, err
		}
		p = conduit.WithRetry(p)
		if inst != nil {
			p = observer.WrapProvider(p, model, inst)
		}
		return p, nil
	}

	runnerOpts := []conduit.AgentRunnerOption{
		conduit.WithAgentLogger(logger),
		conduit.WithAgentDefaults(conduit.AgentOptions{
			MaxToolCalls:       cfg.Agent.MaxToolCalls,
			IncludeToolResults: cfg.Agent.IncludeToolResults,
			Model:              cfg.Provider.Model,
		}),
	}
	if cfg.Agent.SystemPrompt != "" {
		runnerOpts = append(runnerOpts, conduit.WithSystemPrompt(cfg.Agent.SystemPrompt))
	}
	if inst != nil {
		runnerOpts = append(runnerOpts, conduit.WithAgentTracer(observer.NewTracer()))
	}
	runner := conduit.NewAgentRunner(factory, dispatcher, runnerOpts...)

	router := conduit.NewRouter(rpc, runner, logger)

	if err := serve(ctx, router, cfg.Provider.APIKey); err != nil && ctx.Err() == nil {
		log.Fatalf("conduit: %v", err)
	}
}

// serve reads newline-delimited requests from stdin and writes one response
// per line to stdout. Blocks until stdin closes or ctx is cancelled.
func serve(ctx context.Context, router *conduit.Router, apiKey string) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 10<<20), 10<<20) // 10MB max message

	var mu sync.Mutex
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := router.Route(ctx, line, apiKey)

		mu.Lock()
		resp = append(resp, '\n')
		if _, err := os.Stdout.Write(resp); err != nil {
			log.Printf("conduit: write response: %v", err)
		}
		mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	return nil
}
