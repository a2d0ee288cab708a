// Package openapi carries the API description so binaries built with the
// embed_openapi tag can serve it without the repo checkout.
package openapi

import _ "embed"

//go:embed openapi.yaml
var Spec []byte
