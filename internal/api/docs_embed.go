//go:build embed_openapi

package api

import "fleetsolve/openapi"

func openAPILoad() ([]byte, error) { return openapi.Spec, nil }
