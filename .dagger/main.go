// Converse CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
package main

import (
	"context"

	"dagger/converse/internal/dagger"
)

// Converse is the main module for the converse CI/CD pipeline
type Converse struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Converse CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp", ".converse"]
	source *dagger.Directory,
) *Converse {
	return &Converse{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with the project
// source mounted. The module is pure Go so CGO stays off.
//
// It is the shared foundation for tests, builds, and linting.
func (c *Converse) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithEnvVariable("CGO_ENABLED", "0").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", c.Source)
}

// Test runs the converse unit tests via "go test"
func (c *Converse) Test(ctx context.Context) (string, error) {
	return c.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
