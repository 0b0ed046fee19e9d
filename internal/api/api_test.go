package api

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSpec(t *testing.T) *openapi3.T {
	t.Helper()
	file, err := os.ReadFile("../../api/api.yaml")
	require.NoError(t, err)
	loader := openapi3.NewLoader()
	spec, err := loader.LoadFromData(file)
	require.NoError(t, err)
	return spec
}

// TestValid verifies that the api spec can be validated by github.com/getkin/kin-openapi
func TestValid(t *testing.T) {
	assert.NoError(t, loadSpec(t).Validate(context.Background()))
}

// TestRoutesDocumented checks that every route served by the router is in the spec and the other way round
func TestRoutesDocumented(t *testing.T) {
	spec := loadSpec(t)
	documented := map[string]bool{}
	for path, item := range spec.Paths.Map() {
		for method := range item.Operations() {
			documented[method+" "+path] = true
		}
	}

	router, ok := newTestServer(t, 0).Handler(context.Background()).(chi.Routes)
	require.True(t, ok)
	served := map[string]bool{}
	require.NoError(t, chi.Walk(router, func(method string, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		served[method+" "+strings.TrimSuffix(route, "/")] = true
		return nil
	}))
	assert.Equal(t, documented, served)
}
