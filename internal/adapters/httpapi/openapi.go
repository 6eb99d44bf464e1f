package httpapi

import (
	_ "embed"
	"net/http"
)

// OpenAPISpec is the OpenAPI document describing the routes served by Handler.
//
//go:embed openapi.yaml
var OpenAPISpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), OpenAPISpec...)
}

func handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(OpenAPISpec)
}
