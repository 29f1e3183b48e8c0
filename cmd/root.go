package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	contractx "github.com/hierarch-ai/hrag/agent/contract"
	enginex "github.com/hierarch-ai/hrag/agent/engine"
	llmx "github.com/hierarch-ai/hrag/agent/llm"
	plannerx "github.com/hierarch-ai/hrag/agent/planner"
	promptx "github.com/hierarch-ai/hrag/agent/prompt"
	statex "github.com/hierarch-ai/hrag/agent/state"
	workerx "github.com/hierarch-ai/hrag/agent/worker"
	postgresx "github.com/hierarch-ai/hrag/connector/postgres"
	vectorstorex "github.com/hierarch-ai/hrag/connector/vectorstore"
	configx "github.com/hierarch-ai/hrag/pkg/config"
)

var (
	flagJSON    bool
	flagVerbose bool
	flagTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "hrag <question>",
	Short: "Answer a question by orchestrating sql and vector retrieval agents",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagVerbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
		return run(cmd.Context(), strings.Join(args, " "))
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Flags().BoolVar(&flagJSON, "json", false, "print the result as JSON")
	rootCmd.Flags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	rootCmd.Flags().DurationVar(&flagTimeout, "timeout", 5*time.Minute, "deadline for the whole run")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// jsonResult is the machine-readable run outcome.
type jsonResult struct {
	RunID      string `json:"run_id"`
	Query      string `json:"query"`
	Answer     string `json:"answer"`
	QueryClass string `json:"query_type,omitempty"`
	RetryCount int    `json:"retry_count"`
}

func run(ctx context.Context, question string) error {
	if flagTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flagTimeout)
		defer cancel()
	}

	eng, store, err := buildEngine(ctx)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	runID := uuid.NewString()
	log.Info().Str("run_id", runID).Msg("starting run")

	result, runErr := eng.Run(ctx, question)
	if runErr != nil {
		log.Warn().Err(runErr).Str("run_id", runID).Msg("run ended abnormally")
	}

	record := &statex.RunRecord{
		RunID:      runID,
		Query:      question,
		Answer:     result.Answer,
		QueryClass: result.QueryClass,
		RetryCount: result.RetryCount,
	}
	if err := store.Save(ctx, record); err != nil {
		log.Warn().Err(err).Str("run_id", runID).Msg("save run record")
	}

	if flagJSON {
		out := jsonResult{
			RunID:      runID,
			Query:      question,
			Answer:     result.Answer,
			QueryClass: result.QueryClass,
			RetryCount: result.RetryCount,
		}
		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(encoded))
		return runErr
	}

	fmt.Println(result.Answer)
	return runErr
}

// storeConfig gates the optional run-record store.
type storeConfig struct {
	Enabled bool `envconfig:"ENABLED" split_words:"true" default:"false"`
}

func buildEngine(ctx context.Context) (*enginex.Engine, statex.RunStore, error) {
	llmCfg, err := configx.New[llmx.Config]("OPENROUTER")
	if err != nil {
		return nil, nil, fmt.Errorf("openrouter config: %w", err)
	}
	if err := llmCfg.Validate(); err != nil {
		return nil, nil, err
	}
	prompts := promptx.LoadSet()

	supervisorModelCfg := llmCfg.OpenRouterFor(llmx.RoleSupervisor)
	supervisorModel, err := supervisorModelCfg.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("supervisor model: %w", err)
	}
	pl, err := plannerx.New(ctx, supervisorModel, prompts)
	if err != nil {
		return nil, nil, err
	}

	sqlWorker, err := buildSQLWorker(ctx, *llmCfg, prompts)
	if err != nil {
		return nil, nil, err
	}
	vectorWorker, err := buildVectorWorker(ctx, *llmCfg, prompts)
	if err != nil {
		return nil, nil, err
	}

	eng, err := enginex.New(pl,
		[]contractx.Worker{sqlWorker, vectorWorker},
		enginex.WithCallTimeout(llmCfg.Timeout*3),
	)
	if err != nil {
		return nil, nil, err
	}

	return eng, buildRunStore(), nil
}

func buildSQLWorker(ctx context.Context, llmCfg llmx.Config, prompts promptx.Set) (*workerx.SQLWorker, error) {
	modelCfg := llmCfg.OpenRouterFor(llmx.RoleSQL)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("sql model: %w", err)
	}

	pgCfg, err := configx.New[postgresx.Config]("POSTGRES")
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	opener := func(ctx context.Context) (contractx.SQLEngine, error) {
		return postgresx.Open(ctx, *pgCfg)
	}
	return workerx.NewSQL(ctx, chatModel, prompts.SQLWorker, opener)
}

func buildVectorWorker(ctx context.Context, llmCfg llmx.Config, prompts promptx.Set) (*workerx.VectorWorker, error) {
	modelCfg := llmCfg.OpenRouterFor(llmx.RoleVector)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("vector model: %w", err)
	}

	vecCfg, err := configx.New[vectorstorex.Config]("UPSTASH_VECTOR")
	if err != nil {
		return nil, fmt.Errorf("vector store config: %w", err)
	}
	var opts []vectorstorex.ClientOption
	if key := strings.TrimSpace(os.Getenv("EMBEDDER_API_KEY")); key != "" {
		embCfg, err := configx.New[vectorstorex.EmbedderConfig]("EMBEDDER")
		if err != nil {
			return nil, fmt.Errorf("embedder config: %w", err)
		}
		embedder, err := vectorstorex.NewOpenAIEmbedder(*embCfg)
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		opts = append(opts, vectorstorex.WithEmbedder(embedder))
	}

	opener := func(ctx context.Context) (contractx.VectorIndex, error) {
		return vectorstorex.New(*vecCfg, opts...)
	}
	return workerx.NewVector(ctx, chatModel, prompts.VectorWorker, opener)
}

func buildRunStore() statex.RunStore {
	gate := configx.MustNew[storeConfig]("RUN_STORE")
	if !gate.Enabled {
		return statex.NoopRunStore{}
	}

	redisCfg, err := configx.New[statex.UpstashRedisConfig]("UPSTASH_REDIS")
	if err != nil {
		log.Warn().Err(err).Msg("run store misconfigured, records will be discarded")
		return statex.NoopRunStore{}
	}
	store, err := statex.NewUpstashRedisStore(*redisCfg)
	if err != nil {
		log.Warn().Err(err).Msg("run store unavailable, records will be discarded")
		return statex.NoopRunStore{}
	}
	return store
}
