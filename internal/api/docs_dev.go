//go:build !embed_openapi

package api

import "os"

// openAPILoad loads the OpenAPI spec from disk (dev mode)
func openAPILoad() ([]byte, error) { return os.ReadFile(getEnv("OPENAPI_PATH", "openapi/openapi.yaml")) }
