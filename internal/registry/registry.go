// Package registry manages the catalog of automation systems: their records,
// their scaffolded project directories, and their deployment lifecycle.
package registry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"

	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/pkg/models"
)

// ErrInvalidSlug is returned when a slug does not match the URL-safe pattern.
var ErrInvalidSlug = errors.New("slug must be lowercase letters, digits and single hyphens")

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Deployer pushes a scaffolded system to its runtime and reports where it
// landed. EndpointURL must come from a structured status query, never from
// scraping deploy output.
type Deployer interface {
	Deploy(ctx context.Context, slug, dir string) error
	EndpointURL(ctx context.Context, slug string) (string, error)
}

// SchemaInvalidator drops any cached input schema for a slug. Satisfied by
// schema.Resolver.
type SchemaInvalidator interface {
	Invalidate(ctx context.Context, slug string) error
}

type Config struct {
	Systems       repository.SystemStore
	Deployer      Deployer
	Schemas       SchemaInvalidator
	SystemsDir    string
	DeployTimeout time.Duration
	Logger        *logging.Logger
}

// Service owns system registration and deployment.
type Service struct {
	systems       repository.SystemStore
	deployer      Deployer
	schemas       SchemaInvalidator
	systemsDir    string
	deployTimeout time.Duration
	logger        *logging.Logger
}

func NewService(config Config) *Service {
	if config.DeployTimeout <= 0 {
		config.DeployTimeout = 5 * time.Minute
	}
	return &Service{
		systems:       config.Systems,
		deployer:      config.Deployer,
		schemas:       config.Schemas,
		systemsDir:    config.SystemsDir,
		deployTimeout: config.DeployTimeout,
		logger:        config.Logger,
	}
}

// CreateInput carries the user-supplied fields of a new system.
type CreateInput struct {
	Slug        string                `json:"slug"`
	Name        string                `json:"name"`
	Category    models.SystemCategory `json:"category"`
	Description string                `json:"description"`
	ChatContext string                `json:"chat_context"`
}

// Create registers a system and scaffolds its project directory. The record
// starts in the scaffold status with a fresh API key and no endpoint.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.System, error) {
	if !slugPattern.MatchString(in.Slug) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSlug, in.Slug)
	}
	if in.Name == "" {
		in.Name = in.Slug
	}

	now := time.Now().UTC()
	system := &models.System{
		ID:          uuid.NewString(),
		Slug:        in.Slug,
		Name:        in.Name,
		Category:    in.Category,
		Description: in.Description,
		ChatContext: in.ChatContext,
		APIKey:      newAPIKey(),
		Status:      models.SystemStatusScaffold,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.systems.Create(ctx, system); err != nil {
		return nil, err
	}

	if err := s.scaffold(system); err != nil {
		// Keep the catalog consistent with the filesystem.
		if delErr := s.systems.Delete(ctx, system.Slug); delErr != nil {
			s.logger.Error("rollback of system %q failed: %v", system.Slug, delErr)
		}
		return nil, fmt.Errorf("scaffold %q: %w", system.Slug, err)
	}

	s.logger.Info("system %q created in %s", system.Slug, s.dirFor(system.Slug))
	return system, nil
}

func (s *Service) Get(ctx context.Context, slug string) (*models.System, error) {
	return s.systems.GetBySlug(ctx, slug)
}

func (s *Service) List(ctx context.Context, filter repository.SystemFilter) ([]*models.System, error) {
	return s.systems.List(ctx, filter)
}

// UpdateInput holds the mutable fields of a system; nil fields are untouched.
type UpdateInput struct {
	Name        *string                `json:"name"`
	Category    *models.SystemCategory `json:"category"`
	Description *string                `json:"description"`
	ChatContext *string                `json:"chat_context"`
	Status      *models.SystemStatus   `json:"status"`
}

func (s *Service) Update(ctx context.Context, slug string, in UpdateInput) (*models.System, error) {
	system, err := s.systems.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		system.Name = *in.Name
	}
	if in.Category != nil {
		system.Category = *in.Category
	}
	if in.Description != nil {
		system.Description = *in.Description
	}
	if in.ChatContext != nil {
		system.ChatContext = *in.ChatContext
	}
	if in.Status != nil {
		system.Status = *in.Status
	}
	if err := s.systems.Update(ctx, system); err != nil {
		return nil, err
	}
	return system, nil
}

// Delete removes the system record and, when removeFiles is set, its
// scaffolded directory.
func (s *Service) Delete(ctx context.Context, slug string, removeFiles bool) error {
	if err := s.systems.Delete(ctx, slug); err != nil {
		return err
	}
	if removeFiles {
		if err := os.RemoveAll(s.dirFor(slug)); err != nil {
			return fmt.Errorf("remove scaffold for %q: %w", slug, err)
		}
	}
	return nil
}

// Deploy pushes the system's scaffolded directory to the runtime, records the
// endpoint reported by the structured status query, and drops any cached input
// schema so the next intake conversation sees the redeployed contract.
func (s *Service) Deploy(ctx context.Context, slug string) (*models.System, error) {
	system, err := s.systems.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	dir := s.dirFor(slug)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("system %q has no project directory: %w", slug, err)
	}

	deployCtx, cancel := context.WithTimeout(ctx, s.deployTimeout)
	defer cancel()

	if err := s.deployer.Deploy(deployCtx, slug, dir); err != nil {
		return nil, fmt.Errorf("deploy %q: %w", slug, err)
	}
	endpoint, err := s.deployer.EndpointURL(deployCtx, slug)
	if err != nil {
		return nil, fmt.Errorf("query endpoint for %q: %w", slug, err)
	}

	system.EndpointURL = &endpoint
	system.Status = models.SystemStatusDeployed
	if err := s.systems.Update(ctx, system); err != nil {
		return nil, err
	}

	if err := s.schemas.Invalidate(ctx, slug); err != nil {
		return nil, fmt.Errorf("invalidate schema for %q: %w", slug, err)
	}

	s.logger.Info("system %q deployed at %s", slug, endpoint)
	return system, nil
}

func (s *Service) dirFor(slug string) string {
	return filepath.Join(s.systemsDir, slug)
}

// newAPIKey mints the shared secret a deployed endpoint expects in X-API-Key.
func newAPIKey() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has bigger problems.
		panic(err)
	}
	return "sk_" + hex.EncodeToString(buf)
}
