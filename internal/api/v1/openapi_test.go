package apiv1

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// The served OpenAPI document must stay a valid 3.x spec; swagger UI and
// client generators both consume it.
func TestOpenAPIDocumentIsValid(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("../../../public/docs/v1/openapi.yml")
	if err != nil {
		t.Fatalf("failed to load openapi document: %v", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("openapi document is invalid: %v", err)
	}

	if doc.Info == nil || doc.Info.Title == "" {
		t.Fatal("openapi document is missing info.title")
	}

	for _, path := range []string{
		"/ping",
		"/projects",
		"/projects/{id}/subscription",
		"/projects/{id}/collaborators",
		"/tiers",
	} {
		if doc.Paths.Find(path) == nil {
			t.Errorf("openapi document is missing path %s", path)
		}
	}
}
