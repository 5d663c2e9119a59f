package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"automation-hub/backend/internal/logging"
	"automation-hub/backend/internal/repository"
	"automation-hub/backend/pkg/models"
)

type fakeDeployer struct {
	deployErr   error
	endpoint    string
	endpointErr error
	deployed    []string
}

func (d *fakeDeployer) Deploy(_ context.Context, slug, _ string) error {
	if d.deployErr != nil {
		return d.deployErr
	}
	d.deployed = append(d.deployed, slug)
	return nil
}

func (d *fakeDeployer) EndpointURL(_ context.Context, _ string) (string, error) {
	if d.endpointErr != nil {
		return "", d.endpointErr
	}
	return d.endpoint, nil
}

type fakeInvalidator struct {
	slugs []string
}

func (f *fakeInvalidator) Invalidate(_ context.Context, slug string) error {
	f.slugs = append(f.slugs, slug)
	return nil
}

func newService(t *testing.T, deployer Deployer) (*Service, *fakeInvalidator, string) {
	t.Helper()
	dir := t.TempDir()
	inv := &fakeInvalidator{}
	svc := NewService(Config{
		Systems:    repository.NewMemorySystemStore(),
		Deployer:   deployer,
		Schemas:    inv,
		SystemsDir: dir,
		Logger:     logging.NewLogger(),
	})
	return svc, inv, dir
}

func TestCreateScaffoldsProject(t *testing.T) {
	svc, _, dir := newService(t, &fakeDeployer{})

	system, err := svc.Create(context.Background(), CreateInput{
		Slug:        "generate-ai-video-ads",
		Name:        "Generate AI Video Ads",
		Category:    models.CategoryContent,
		Description: "Turns product photos into UGC video ads",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(system.APIKey, "sk_"))
	assert.Len(t, system.APIKey, len("sk_")+48)
	assert.Equal(t, models.SystemStatusScaffold, system.Status)
	assert.Nil(t, system.EndpointURL)

	for _, name := range []string{"system.yaml", "app.py", "README.md"} {
		data, err := os.ReadFile(filepath.Join(dir, "generate-ai-video-ads", name))
		require.NoError(t, err, name)
		assert.Contains(t, string(data), "generate-ai-video-ads", name)
	}

	stub, err := os.ReadFile(filepath.Join(dir, "generate-ai-video-ads", "app.py"))
	require.NoError(t, err)
	assert.Contains(t, string(stub), "client_id")
	assert.Contains(t, string(stub), "X-API-Key")

	got, err := svc.Get(context.Background(), "generate-ai-video-ads")
	require.NoError(t, err)
	assert.Equal(t, system.ID, got.ID)
}

func TestCreateRejectsBadSlug(t *testing.T) {
	svc, _, _ := newService(t, &fakeDeployer{})

	for _, slug := range []string{"", "Has-Caps", "double--hyphen", "ends-", "-starts", "under_score"} {
		_, err := svc.Create(context.Background(), CreateInput{Slug: slug})
		assert.ErrorIs(t, err, ErrInvalidSlug, slug)
	}
}

func TestCreateDuplicateSlug(t *testing.T) {
	svc, _, _ := newService(t, &fakeDeployer{})

	_, err := svc.Create(context.Background(), CreateInput{Slug: "dup"})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInput{Slug: "dup"})
	assert.ErrorIs(t, err, repository.ErrSlugExists)
}

func TestDeploySetsEndpointAndInvalidatesSchema(t *testing.T) {
	deployer := &fakeDeployer{endpoint: "https://acme--my-system.example.run"}
	svc, inv, _ := newService(t, deployer)

	_, err := svc.Create(context.Background(), CreateInput{Slug: "my-system"})
	require.NoError(t, err)

	system, err := svc.Deploy(context.Background(), "my-system")
	require.NoError(t, err)

	require.NotNil(t, system.EndpointURL)
	assert.Equal(t, "https://acme--my-system.example.run", *system.EndpointURL)
	assert.Equal(t, models.SystemStatusDeployed, system.Status)
	assert.True(t, system.Deployed())
	assert.Equal(t, []string{"my-system"}, deployer.deployed)
	assert.Equal(t, []string{"my-system"}, inv.slugs)
}

func TestDeployFailureLeavesRecordUntouched(t *testing.T) {
	deployer := &fakeDeployer{deployErr: fmt.Errorf("build failed")}
	svc, inv, _ := newService(t, deployer)

	_, err := svc.Create(context.Background(), CreateInput{Slug: "broken"})
	require.NoError(t, err)

	_, err = svc.Deploy(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed")

	got, err := svc.Get(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, models.SystemStatusScaffold, got.Status)
	assert.Nil(t, got.EndpointURL)
	assert.Empty(t, inv.slugs)
}

func TestDeployUnknownSystem(t *testing.T) {
	svc, _, _ := newService(t, &fakeDeployer{})

	_, err := svc.Deploy(context.Background(), "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdateMutatesOnlyProvidedFields(t *testing.T) {
	svc, _, _ := newService(t, &fakeDeployer{})

	_, err := svc.Create(context.Background(), CreateInput{
		Slug: "editable", Name: "Before", Description: "old"})
	require.NoError(t, err)

	name := "After"
	system, err := svc.Update(context.Background(), "editable", UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "After", system.Name)
	assert.Equal(t, "old", system.Description)
}

func TestDeleteRemovesScaffoldWhenAsked(t *testing.T) {
	svc, _, dir := newService(t, &fakeDeployer{})

	_, err := svc.Create(context.Background(), CreateInput{Slug: "doomed"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "doomed", true))

	_, err = svc.Get(context.Background(), "doomed")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = os.Stat(filepath.Join(dir, "doomed"))
	assert.True(t, os.IsNotExist(err))
}
