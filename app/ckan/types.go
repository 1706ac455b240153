package ckan

import (
	"fmt"

	"github.com/lysyi3m/shelter-sync/app/shelter"
)

// Source configuration types

type Source struct {
	BaseURL    string         `yaml:"base_url"`
	PackageID  string         `yaml:"package_id"`
	ResourceID string         `yaml:"resource_id"` // Overrides datastore resource discovery when set
	Settings   SourceSettings `yaml:"settings"`
}

type SourceSettings struct {
	PageSize int `yaml:"page_size"`
	Timeout  int `yaml:"timeout"` // seconds, per request
}

// CKAN action API types

type response[T any] struct {
	Success bool      `json:"success"`
	Result  T         `json:"result"`
	Error   *apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type packageResult struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Resources []resource `json:"resources"`
}

type resource struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Format          string `json:"format"`
	DatastoreActive bool   `json:"datastore_active"`
}

type datastoreResult struct {
	Records []shelter.RawRecord `json:"records"`
	Total   int                 `json:"total"`
}
