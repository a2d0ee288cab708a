package api

import "net/http"

// OpenAPIHandler serves the raw OpenAPI document. The bytes come from
// openAPILoad, which the embed_openapi build tag switches between a
// disk read and a compiled-in copy.
func (s *Server) OpenAPIHandler(w http.ResponseWriter, r *http.Request) {
    b, err := openAPILoad()
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "OpenAPI not available", err.Error(), r.URL.Path)
        return
    }
    w.Header().Set("Content-Type", "application/yaml")
    _, _ = w.Write(b)
}

// DocsHandler serves a ReDoc reader over /openapi.yaml. Swagger UI with
// the try-it-out console lives at /swagger.
func (s *Server) DocsHandler(w http.ResponseWriter, r *http.Request) {
    w.Header().Set("Content-Type", "text/html; charset=utf-8")
    _, _ = w.Write([]byte(`<!DOCTYPE html><html lang="en"><head>
    <title>fleetsolve API Reference</title>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>body{margin:0;padding:0}</style>
    </head><body>
    <redoc spec-url="/openapi.yaml" hide-loading></redoc>
    <script src="https://cdn.jsdelivr.net/npm/redoc@next/bundles/redoc.standalone.js"></script>
    </body></html>`))
}
