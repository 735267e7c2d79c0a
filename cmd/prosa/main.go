package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prosabot/prosa/internal/bot"
	"github.com/prosabot/prosa/internal/bus"
	"github.com/prosabot/prosa/internal/channel"
	"github.com/prosabot/prosa/internal/config"
	"github.com/prosabot/prosa/internal/dashboard"
	"github.com/prosabot/prosa/internal/gateway"
	"github.com/prosabot/prosa/internal/ingest"
	"github.com/prosabot/prosa/internal/llm"
	"github.com/prosabot/prosa/internal/rag"
	"github.com/prosabot/prosa/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "prosa",
	Short: "prosa - assistente conversacional para Discord com RAG",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot and the web dashboard",
	RunE:  runBot,
}

var importCmd = &cobra.Command{
	Use:   "import <arquivo|diretório>",
	Short: "Import documents into the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and data store status",
	RunE:  runStatus,
}

var (
	docsDirFlag   string
	everyFlag     string
	autostartFlag bool
)

func init() {
	runCmd.Flags().StringVar(&docsDirFlag, "docs-dir", "documentos", "directory swept for pending documents")
	runCmd.Flags().BoolVar(&autostartFlag, "autostart", true, "connect to Discord on startup")
	importCmd.Flags().StringVar(&everyFlag, "every", "", "cron expression to keep re-running the import")
	rootCmd.AddCommand(runCmd, importCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()

	st, err := store.Open(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	embedder := rag.NewOpenAIEmbedder(cfg.Embedding)
	knowledge, err := rag.Open(cfg.Store.RAGDBPath, cfg.Store.Collection, embedder, logger)
	if err != nil {
		return fmt.Errorf("open knowledge base: %w", err)
	}
	defer knowledge.Close()

	importer, err := ingest.NewImporter(cfg.Store.RAGDBPath, knowledge, cfg.Store.Collection, docsDirFlag, logger)
	if err != nil {
		return fmt.Errorf("open importer: %w", err)
	}
	defer importer.Close()

	handler := bot.NewHandler(st, knowledge, llm.NewClient(cfg.Completion), cfg.Bot, logger)

	b := bus.NewMessageBus(config.DefaultBufSize)
	discord := channel.NewDiscord(cfg.Discord.Token, b, nil, logger)
	manager := gateway.NewManager(b, discord, handler, logger)

	dash := dashboard.NewServer(cfg.Dashboard, manager, st, knowledge, importer, cfg.Log.File, logger)
	if err := dash.Start(); err != nil {
		return fmt.Errorf("start dashboard: %w", err)
	}

	if autostartFlag {
		if res := manager.Start(); !res.Success {
			logger.Error("bot autostart failed", "message", res.Message)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	if manager.State() == gateway.StateRunning {
		manager.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dash.Shutdown(shutdownCtx); err != nil {
		logger.Error("dashboard shutdown error", "error", err)
	}
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.Log)
	defer closeLog()

	embedder := rag.NewOpenAIEmbedder(cfg.Embedding)
	knowledge, err := rag.Open(cfg.Store.RAGDBPath, cfg.Store.Collection, embedder, logger)
	if err != nil {
		return fmt.Errorf("open knowledge base: %w", err)
	}
	defer knowledge.Close()

	watchDir := ""
	if info, err := os.Stat(args[0]); err == nil && info.IsDir() {
		watchDir = args[0]
	}
	importer, err := ingest.NewImporter(cfg.Store.RAGDBPath, knowledge, cfg.Store.Collection, watchDir, logger)
	if err != nil {
		return fmt.Errorf("open importer: %w", err)
	}
	defer importer.Close()

	files, chunks, err := importer.ImportPath(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Importados %d arquivo(s), %d documento(s)\n", files, chunks)

	if everyFlag == "" {
		return nil
	}
	if watchDir == "" {
		return fmt.Errorf("--every requer um diretório")
	}

	sweeper, err := ingest.NewSweeper(importer, everyFlag, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	return nil
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg := config.Load()

	fmt.Printf("Banco de conversas: %s\n", describeFile(cfg.Store.DBPath))
	fmt.Printf("Base de conhecimento: %s\n", describeFile(cfg.Store.RAGDBPath))
	fmt.Printf("Coleção padrão: %s\n", cfg.Store.Collection)
	fmt.Printf("Modelo de conversa: %s\n", cfg.Completion.Model)
	fmt.Printf("Modelo de embedding: %s\n", cfg.Embedding.Model)
	fmt.Printf("Token Discord: %s\n", maskKey(cfg.Discord.Token))
	fmt.Printf("Chave OpenRouter: %s\n", maskKey(cfg.Completion.APIKey))
	fmt.Printf("Chave OpenAI: %s\n", maskKey(cfg.Embedding.APIKey))
	fmt.Printf("Painel web: %s\n", cfg.Dashboard.Addr)
	return nil
}

func describeFile(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Sprintf("%s (não criado)", path)
	}
	return fmt.Sprintf("%s (%d bytes)", path, info.Size())
}

func maskKey(key string) string {
	if key == "" {
		return "não configurada"
	}
	if len(key) <= 8 {
		return "configurada"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
