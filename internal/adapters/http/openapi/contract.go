// Package openapi holds the public HTTP contract and validates inbound
// requests against it.
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

//go:embed openapi.yaml
var document []byte

// Load parses and validates the embedded contract.
func Load() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return doc, nil
}

type RequestValidator struct {
	router  routers.Router
	maxBody int64
}

func NewRequestValidator(doc *openapi3.T, maxBody int64) (*RequestValidator, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	return &RequestValidator{router: router, maxBody: maxBody}, nil
}

// MustNewRequestValidator builds a validator for the embedded contract.
func MustNewRequestValidator(maxBody int64) *RequestValidator {
	doc, err := Load()
	if err != nil {
		panic(err)
	}
	v, err := NewRequestValidator(doc, maxBody)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate checks parameters and body of r. Requests for paths outside the
// contract pass through untouched.
func (v *RequestValidator) Validate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	route, pathParams, err := v.router.FindRoute(r)
	if err != nil {
		var routeErr *routers.RouteError
		if errors.As(err, &routeErr) {
			return nil
		}
		return err
	}
	if route.Operation != nil && route.Operation.RequestBody != nil && r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, v.maxBody)
	}
	err = openapi3filter.ValidateRequest(ctx, &openapi3filter.RequestValidationInput{
		Request:    r,
		PathParams: pathParams,
		Route:      route,
		Options: &openapi3filter.Options{
			AuthenticationFunc:  openapi3filter.NoopAuthenticationFunc,
			SkipSettingDefaults: true,
		},
	})
	if err != nil {
		return errors.New(describe(err))
	}
	return nil
}

// describe flattens filter errors into one line without the schema dump.
func describe(err error) string {
	var reqErr *openapi3filter.RequestError
	if !errors.As(err, &reqErr) {
		return err.Error()
	}
	subject := "body"
	if reqErr.Parameter != nil {
		subject = reqErr.Parameter.In + " parameter " + reqErr.Parameter.Name
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(reqErr.Err, &schemaErr) {
		if pointer := schemaErr.JSONPointer(); len(pointer) > 0 {
			subject += " field " + strings.Join(pointer, ".")
		}
		return subject + ": " + schemaErr.Reason
	}
	if reqErr.Reason != "" {
		return subject + ": " + reqErr.Reason
	}
	return subject + ": " + reqErr.Error()
}
