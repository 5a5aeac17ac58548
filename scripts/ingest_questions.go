package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hirecorrecto/interview-orchestrator/internal/config"
	"hirecorrecto/interview-orchestrator/internal/models"
	"hirecorrecto/interview-orchestrator/internal/services"
)

// questionBank is the YAML file recruiters maintain. Entries are either a
// bare question string or a mapping with id, text and skills.
type questionBank struct {
	Questions []bankEntry `yaml:"questions"`
}

type bankEntry struct {
	models.PoolQuestion
}

func (e *bankEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		e.PoolQuestion = models.NewPoolQuestion("", node.Value, nil)
		return nil
	}

	var raw struct {
		ID     string   `yaml:"id"`
		Text   string   `yaml:"text"`
		Skills []string `yaml:"skills"`
	}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	e.PoolQuestion = models.NewPoolQuestion(raw.ID, raw.Text, raw.Skills)
	return nil
}

func loadQuestionBank(path string) ([]models.PoolQuestion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading question bank: %w", err)
	}

	var bank questionBank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return nil, fmt.Errorf("parsing question bank: %w", err)
	}

	var questions []models.PoolQuestion
	for _, e := range bank.Questions {
		if e.Text == "" {
			continue
		}
		questions = append(questions, e.PoolQuestion)
	}
	return questions, nil
}

// embeddingText is what gets embedded for a question: its skills first, so
// skill-only queries land near it, then the wording.
func embeddingText(q models.PoolQuestion) string {
	if len(q.Skills) == 0 {
		return q.Text
	}
	return strings.Join(q.Skills, ", ") + "\n" + q.Text
}

var rootCmd = &cobra.Command{
	Use:   "ingest-questions [bank.yaml]",
	Short: "Embed an optional question bank into Qdrant",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.Flags().Bool("dry-run", false, "parse and report the bank without embedding")
	rootCmd.Flags().StringSlice("delete", nil, "pool question IDs to remove from the index before ingesting")
}

func runIngest(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	toDelete, _ := cmd.Flags().GetStringSlice("delete")

	log.Println("🚀 Starting question bank ingestion...")

	questions, err := loadQuestionBank(args[0])
	if err != nil {
		return err
	}
	log.Printf("📄 Loaded %d questions from %s", len(questions), args[0])

	if dryRun {
		for _, q := range questions {
			log.Printf("   %s  %q  skills=%v", q.ID, q.Text, q.Skills)
		}
		return nil
	}

	// Load configuration
	cfg := config.Load()

	// Initialize services
	geminiService, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Gemini.EmbedModel)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini: %w", err)
	}

	qdrantService, err := services.NewQdrantService(
		cfg.Qdrant.URL,
		cfg.Qdrant.APIKey,
		cfg.Qdrant.Collection,
		geminiService,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Qdrant: %w", err)
	}

	ctx := context.Background()
	if err := qdrantService.InitCollection(ctx); err != nil {
		return fmt.Errorf("failed to initialize collection: %w", err)
	}

	for _, id := range toDelete {
		if err := qdrantService.DeleteQuestion(ctx, id); err != nil {
			return fmt.Errorf("failed to delete question %s: %w", id, err)
		}
		log.Printf("🗑️  Removed question %s", id)
	}

	successCount := 0
	failCount := 0

	for i, q := range questions {
		embedding, err := geminiService.Embed(ctx, embeddingText(q))
		if err != nil {
			log.Printf("   ❌ Failed to embed question %s: %v", q.ID, err)
			failCount++
			continue
		}

		if err := qdrantService.UpsertQuestion(ctx, q, embedding); err != nil {
			log.Printf("   ❌ Failed to store question %s: %v", q.ID, err)
			failCount++
			continue
		}
		successCount++

		if (i+1)%10 == 0 || i == len(questions)-1 {
			log.Printf("   📊 Progress: %d/%d questions stored", i+1, len(questions))
		}
	}

	// Summary
	log.Println("\n" + strings.Repeat("=", 60))
	log.Printf("📊 Ingestion Summary:")
	log.Printf("   ✅ Successful: %d questions", successCount)
	log.Printf("   ❌ Failed: %d questions", failCount)
	log.Println(strings.Repeat("=", 60))

	if failCount > 0 {
		return fmt.Errorf("%d questions failed to ingest", failCount)
	}

	log.Println("✅ All questions ingested successfully!")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
