package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"text/template"

	"automation-hub/backend/pkg/models"
)

// scaffold writes the starter project for a new system: a service stub that
// already publishes the expected interface description, a manifest, and a
// README. The stub's submission endpoint requires the injected identity field
// and the system's API key header.
func (s *Service) scaffold(system *models.System) error {
	dir := s.dirFor(system.Slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for name, tmpl := range scaffoldTemplates {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := tmpl.Execute(f, system); err != nil {
			f.Close()
			return fmt.Errorf("render %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

var scaffoldTemplates = map[string]*template.Template{
	"system.yaml": template.Must(template.New("system.yaml").Parse(systemManifest)),
	"app.py":      template.Must(template.New("app.py").Parse(appStub)),
	"README.md":   template.Must(template.New("README.md").Parse(readmeStub)),
}

const systemManifest = `slug: {{.Slug}}
name: {{.Name}}
category: {{.Category}}
description: {{.Description}}
# The hub injects this key as X-API-Key on every submission.
api_key_env: SYSTEM_API_KEY
`

const appStub = `"""{{.Name}} - scaffolded by the automation hub.

Fill in RunRequest with your system's real inputs, then deploy. Keep
client_id: the hub injects it on submission and hides it from users.
"""

import os

import modal
from fastapi import FastAPI, Header, HTTPException
from pydantic import BaseModel

app = modal.App("{{.Slug}}")
web = FastAPI(title="{{.Name}}")

image = modal.Image.debian_slim().pip_install("fastapi", "pydantic")


class RunRequest(BaseModel):
    client_id: str


@web.post("/run")
def run(request: RunRequest, x_api_key: str = Header(None)):
    if x_api_key != os.environ.get("SYSTEM_API_KEY"):
        raise HTTPException(status_code=401, detail="invalid api key")
    return {"status": "received"}


@app.function(image=image, secrets=[modal.Secret.from_name("{{.Slug}}-secrets")])
@modal.asgi_app()
def serve():
    return web
`

const readmeStub = `# {{.Name}}

{{.Description}}

Scaffolded system ` + "`{{.Slug}}`" + ` ({{.Category}}). Edit ` + "`app.py`" + `,
then deploy it through the hub:

    POST /api/v1/systems/{{.Slug}}/deploy

The submission schema users see in intake conversations is read from this
service's ` + "`/openapi.json`" + ` after deployment.
`
