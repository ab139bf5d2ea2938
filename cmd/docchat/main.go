// Package main provides the docchat CLI: document ingestion, question
// answering and the MCP serving surface.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/docchat/internal/config"
	"github.com/bull/docchat/internal/docstore"
	"github.com/bull/docchat/internal/embedding"
	ghsource "github.com/bull/docchat/internal/github"
	"github.com/bull/docchat/internal/ingest"
	"github.com/bull/docchat/internal/lifecycle"
	mcpserver "github.com/bull/docchat/internal/mcp"
	"github.com/bull/docchat/internal/retriever"
	"github.com/bull/docchat/internal/synthesis"
	"github.com/bull/docchat/internal/vectorstore"
)

var (
	configPath string
	owner      string
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "Question answering over your own documents",
	Long:  "Ingests documents, indexes them for semantic retrieval, and answers questions grounded in their content.",
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest local files into the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var ingestRepoCmd = &cobra.Command{
	Use:   "ingest-repo",
	Short: "Ingest text files from a GitHub repository path",
	Long: `Fetches every text file under a repository path and ingests each one.

Environment variables:
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)
  OPENAI_API_KEY OpenAI API key for embeddings (required with the openai provider)`,
	RunE: runIngestRepo,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a question answered from the indexed documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored documents and their status",
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index counters",
	RunE:  runStatus,
}

var removeCmd = &cobra.Command{
	Use:   "remove [document-id]",
	Short: "Remove a document and its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document and chunk",
	RunE:  runClear,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server",
	Long: `Serves the pipeline over the Model Context Protocol.

Stdio transport by default; set SERVER_MODE=true (or server.http_mode in the
config file) for Streamable HTTP with /mcp, /health and a landing page.`,
	RunE: runServe,
}

var (
	repoOwner string
	repoName  string
	repoPath  string
	streaming bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&owner, "owner", "local", "owner recorded on ingested documents")

	ingestRepoCmd.Flags().StringVar(&repoOwner, "repo-owner", "", "repository owner (required)")
	ingestRepoCmd.Flags().StringVar(&repoName, "repo", "", "repository name (required)")
	ingestRepoCmd.Flags().StringVar(&repoPath, "path", "", "path within the repository")
	ingestRepoCmd.MarkFlagRequired("repo-owner")
	ingestRepoCmd.MarkFlagRequired("repo")

	askCmd.Flags().BoolVar(&streaming, "stream", false, "stream the answer as it is generated")

	rootCmd.AddCommand(ingestCmd, ingestRepoCmd, askCmd, listCmd, statusCmd, removeCmd, clearCmd, serveCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles the wired components behind one close.
type app struct {
	cfg      *config.Config
	docs     docstore.Store
	vectors  vectorstore.Store
	provider embedding.Provider
	pipeline *ingest.Pipeline
	logger   *slog.Logger
}

func (a *app) close() {
	a.vectors.Close()
	a.docs.Close()
}

// retriever and synthesizer are built on demand; ingestion-only commands
// never touch the chat backend.
func (a *app) newRetriever() *retriever.Retriever {
	return retriever.New(a.provider, a.vectors, a.cfg.Retrieval.TopK, a.cfg.Retrieval.Threshold)
}

func (a *app) newSynthesizer() (*synthesis.Synthesizer, error) {
	chat, err := synthesis.NewOpenAIChat(a.cfg.Chat.Model)
	if err != nil {
		return nil, err
	}
	return synthesis.New(chat, synthesis.Options{
		Temperature: a.cfg.Chat.Temperature,
		MaxTokens:   a.cfg.Chat.MaxTokens,
	}), nil
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var docs docstore.Store
	if cfg.Docstore.Path != "" {
		docs, err = docstore.NewSQLiteStore(cfg.Docstore.Path)
		if err != nil {
			return nil, fmt.Errorf("open document store: %w", err)
		}
	} else {
		docs = docstore.NewMemoryStore()
	}

	var provider embedding.Provider
	switch cfg.Embedding.Provider {
	case config.EmbeddingProviderOllama:
		provider = embedding.NewOllamaProvider(embedding.OllamaConfig{
			BaseURL:    cfg.Embedding.OllamaURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	default:
		provider, err = embedding.NewOpenAIProvider(cfg.Embedding.Model, cfg.Embedding.Dimensions)
		if err != nil {
			docs.Close()
			return nil, err
		}
	}

	var vectors vectorstore.Store
	if cfg.Vector.Backend == config.VectorBackendQdrant {
		vectors, err = vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Host:       cfg.Vector.QdrantHost,
			Port:       cfg.Vector.QdrantPort,
			Collection: cfg.Vector.Collection,
			Dimensions: provider.Dimensions(),
			Owner:      owner,
		})
	} else {
		vectors, err = vectorstore.NewLocalStore(cfg.Vector.SnapshotPath)
	}
	if err != nil {
		docs.Close()
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	tracker := lifecycle.NewTracker(docs, logger)
	pipeline := ingest.NewPipeline(docs, tracker, provider, vectors, ingest.Config{
		ChunkSize:    cfg.Chunk.Size,
		ChunkOverlap: cfg.Chunk.Overlap,
	}, logger)

	return &app{
		cfg:      cfg,
		docs:     docs,
		vectors:  vectors,
		provider: provider,
		pipeline: pipeline,
		logger:   logger,
	}, nil
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	failures := 0
	for _, path := range args {
		raw, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("  %s: %v\n", path, err)
			failures++
			continue
		}

		doc, chunks, err := a.pipeline.Add(ctx, filepath.Base(path), raw, owner)
		if err != nil {
			fmt.Printf("  %s: %v\n", path, err)
			failures++
			continue
		}
		fmt.Printf("  %s: indexed %d chunks (id %s)\n", doc.Name, chunks, doc.ID)
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d files failed", failures, len(args))
	}
	return nil
}

func runIngestRepo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	client, err := ghsource.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("create GitHub client: %w", err)
	}
	src := ghsource.NewSource(client, repoOwner, repoName, repoPath)

	commit, err := src.LatestCommitSHA(ctx)
	if err != nil {
		return fmt.Errorf("get latest commit: %w", err)
	}

	fmt.Printf("Ingesting %s/%s/%s at %s...\n", repoOwner, repoName, repoPath, commit)
	result, err := a.pipeline.IngestAll(ctx, src, owner)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  Documents: %d/%d\n", result.SuccessfulDocs, result.TotalDocs)
	fmt.Printf("  Chunks: %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", result.Duration.Round(time.Second))
	fmt.Printf("  Commit: %s\n", commit)

	if len(result.FailedDocs) > 0 {
		fmt.Println()
		fmt.Println("Failed documents:")
		for _, failed := range result.FailedDocs {
			fmt.Printf("  - %s: %s\n", failed.Name, failed.Reason)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	synth, err := a.newSynthesizer()
	if err != nil {
		return err
	}

	question := args[0]
	results, err := a.newRetriever().Retrieve(ctx, question)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	if streaming {
		answer, err := synth.AnswerStream(ctx, question, nil, results)
		if err != nil {
			return err
		}
		for fragment := range answer.Fragments() {
			fmt.Print(fragment)
		}
		fmt.Println()
		if err := answer.Err(); err != nil {
			return err
		}
		printSources(results)
		return nil
	}

	msg, err := synth.Answer(ctx, question, nil, results)
	if err != nil {
		return err
	}
	fmt.Println(msg.Content)
	printSources(results)
	return nil
}

func printSources(results []vectorstore.SearchResult) {
	if len(results) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	seen := make(map[string]struct{})
	for _, r := range results {
		if _, ok := seen[r.DocumentName]; ok {
			continue
		}
		seen[r.DocumentName] = struct{}{}
		fmt.Printf("  - %s (%.2f)\n", r.DocumentName, r.Similarity)
	}
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	docs, err := a.docs.List(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents stored.")
		return nil
	}

	for _, d := range docs {
		line := fmt.Sprintf("%s  %-10s %s", d.ID, d.Status, d.Name)
		if d.Status == docstore.StatusError && d.ErrorDetail != "" {
			line += "  (" + d.ErrorDetail + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	docs, err := a.docs.List(ctx)
	if err != nil {
		return err
	}
	chunks, err := a.vectors.ChunkCount(ctx)
	if err != nil {
		return err
	}

	counts := map[docstore.Status]int{}
	for _, d := range docs {
		counts[d.Status]++
	}

	fmt.Printf("Documents: %d (indexed %d, processing %d, error %d)\n",
		len(docs), counts[docstore.StatusIndexed], counts[docstore.StatusProcessing], counts[docstore.StatusError])
	fmt.Printf("Chunks: %d\n", chunks)
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.pipeline.Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed %s\n", args[0])
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.vectors.Clear(ctx); err != nil {
		return err
	}
	docs, err := a.docs.List(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := a.docs.Delete(ctx, d.ID); err != nil {
			return err
		}
	}
	fmt.Println("Index cleared.")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	synth, err := a.newSynthesizer()
	if err != nil {
		return err
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Docs:        a.docs,
		Vectors:     a.vectors,
		Retriever:   a.newRetriever(),
		Synthesizer: synth,
	})

	var checker mcpserver.HealthChecker
	if qdrant, ok := a.vectors.(*vectorstore.QdrantStore); ok {
		checker = qdrant
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(checker))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	addr := "0.0.0.0:" + a.cfg.Server.Port

	if a.cfg.Server.HTTPMode {
		a.logger.Info("starting HTTP server", "addr", addr)
		return http.ListenAndServe(addr, mux)
	}

	// Stdio mode still serves /health in the background for local probes.
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			a.logger.Warn("health server stopped", "error", err)
		}
	}()

	a.logger.Info("starting MCP server (stdio)")
	return server.Run(ctx)
}
