// Package api embeds the OpenAPI specification for serving at runtime.
package api

import _ "embed"

// OpenAPISpec is the raw OpenAPI 3.1 JSON specification. It is the single
// source of truth for endpoint, parameter, and field names; response bodies
// must match it exactly.
//
//go:embed openapi.json
var OpenAPISpec []byte
