package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"automation-hub/backend/internal/logging"
)

// CLIDeployer drives deployments through an external CLI. Deploy shells out
// to "<command> deploy <dir>"; the endpoint comes from
// "<command> status <slug> --json", which must print a JSON object with an
// endpoint_url field.
type CLIDeployer struct {
	command string
	logger  *logging.Logger
}

func NewCLIDeployer(command string, logger *logging.Logger) *CLIDeployer {
	return &CLIDeployer{command: command, logger: logger}
}

func (d *CLIDeployer) Deploy(ctx context.Context, slug, dir string) error {
	cmd := exec.CommandContext(ctx, d.command, "deploy", dir)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s deploy: %w: %s", d.command, err, out)
	}
	d.logger.Info("deployed %q via %s", slug, d.command)
	return nil
}

func (d *CLIDeployer) EndpointURL(ctx context.Context, slug string) (string, error) {
	out, err := exec.CommandContext(ctx, d.command, "status", slug, "--json").Output()
	if err != nil {
		return "", fmt.Errorf("%s status: %w", d.command, err)
	}

	var status struct {
		EndpointURL string `json:"endpoint_url"`
	}
	if err := json.Unmarshal(out, &status); err != nil {
		return "", fmt.Errorf("decode %s status output: %w", d.command, err)
	}
	if status.EndpointURL == "" {
		return "", fmt.Errorf("%s status for %q reported no endpoint", d.command, slug)
	}
	return status.EndpointURL, nil
}
