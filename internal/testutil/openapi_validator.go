// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// OpenAPIValidator checks requests and responses against the API document.
type OpenAPIValidator struct {
	router routers.Router
}

// LoadOpenAPIValidator loads and validates the OpenAPI document at specPath.
func LoadOpenAPIValidator(specPath string) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("load OpenAPI spec from %s: %w", specPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate OpenAPI spec: %w", err)
	}

	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{router: router}, nil
}

// Health probes return plain text and are not described in the document.
func skipValidation(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

// input resolves the documented operation for method and URL.
// req carries the query string and headers; body is the JSON payload, if any.
func (v *OpenAPIValidator) input(req *http.Request, body []byte) (*openapi3filter.RequestValidationInput, error) {
	// The document's server is "/", so match on path alone.
	routeReq, err := http.NewRequest(req.Method, req.URL.Path, nil)
	if err != nil {
		return nil, fmt.Errorf("build route request: %w", err)
	}
	route, pathParams, err := v.router.FindRoute(routeReq)
	if err != nil {
		return nil, fmt.Errorf("no documented route for %s %s: %w", req.Method, req.URL.Path, err)
	}

	checked := req.Clone(context.Background())
	checked.Body = io.NopCloser(bytes.NewReader(body))

	return &openapi3filter.RequestValidationInput{
		Request:    checked,
		PathParams: pathParams,
		Route:      route,
		Options:    &openapi3filter.Options{MultiError: true},
	}, nil
}

// CheckRequest reports whether req and its JSON body match the documented operation.
func (v *OpenAPIValidator) CheckRequest(req *http.Request, body []byte) error {
	if skipValidation(req.URL.Path) {
		return nil
	}
	in, err := v.input(req, body)
	if err != nil {
		return err
	}
	if err := openapi3filter.ValidateRequest(context.Background(), in); err != nil {
		return fmt.Errorf("request %s %s: %s", req.Method, req.URL.Path, truncate(err.Error(), 500))
	}
	return nil
}

// CheckResponse reports whether a response to req matches the documented
// status codes and schemas.
func (v *OpenAPIValidator) CheckResponse(req *http.Request, status int, header http.Header, body []byte) error {
	if skipValidation(req.URL.Path) {
		return nil
	}
	in, err := v.input(req, nil)
	if err != nil {
		return err
	}

	err = openapi3filter.ValidateResponse(context.Background(), &openapi3filter.ResponseValidationInput{
		RequestValidationInput: in,
		Status:                 status,
		Header:                 header,
		Body:                   io.NopCloser(bytes.NewReader(body)),
		Options: &openapi3filter.Options{
			MultiError:            true,
			IncludeResponseStatus: true,
		},
	})
	if err != nil {
		return fmt.Errorf("response %s %s (status %d): %s\nbody: %s",
			req.Method, req.URL.Path, status, truncate(err.Error(), 500), truncate(string(body), 200))
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
