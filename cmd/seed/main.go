package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"automation-hub/backend/internal/config"
	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/registry"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/pkg/models"
)

// noopDeployer satisfies the registry without touching any runtime; seeding
// only registers scaffolds.
type noopDeployer struct{}

func (noopDeployer) Deploy(context.Context, string, string) error { return nil }
func (noopDeployer) EndpointURL(context.Context, string) (string, error) {
	return "", fmt.Errorf("seed deployer cannot deploy")
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) error { return nil }

func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	svc := registry.NewService(registry.Config{
		Systems:    repository.NewPostgresSystemStore(pool),
		Deployer:   noopDeployer{},
		Schemas:    noopInvalidator{},
		SystemsDir: cfg.SystemsDir,
		Logger:     logger,
	})

	seeds := []registry.CreateInput{
		{
			Slug:        "generate-ai-video-ads",
			Name:        "Generate AI Video Ads",
			Category:    models.CategoryContent,
			Description: "Turns product photos and a brief into a 30-second UGC-style video ad.",
			ChatContext: "You help brands produce short video ads. Collect their product details step by step.",
		},
		{
			Slug:        "transform-podcast-audio",
			Name:        "Transform Podcast Audio",
			Category:    models.CategoryContent,
			Description: "Turns a podcast episode into posts, threads, captions, and a newsletter.",
			ChatContext: "You help podcasters repurpose episodes. Collect the audio URL and episode details step by step.",
		},
	}

	for _, seed := range seeds {
		system, err := svc.Create(ctx, seed)
		if err != nil {
			if errors.Is(err, repository.ErrSlugExists) {
				logger.Info("Skipping existing system %q", seed.Slug)
				continue
			}
			log.Printf("Failed to seed system %s: %v", seed.Slug, err)
			continue
		}
		logger.Info("Seeded system %q id=%s api_key=%s", system.Slug, system.ID, system.APIKey)
	}
	logger.Info("Seeding complete!")
}
