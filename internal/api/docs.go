package api

const (
	docsPath    = "/docs"
	openAPIPath = "/openapi.json"
)

// knownRoutes bounds the route label recorded in metrics.
var knownRoutes = map[string]bool{
	"/":           true,
	docsPath:      true,
	openAPIPath:   true,
	"/add_fruits": true,
	"/fruits":     true,
	"/healthz":    true,
	"/metrics":    true,
}

func routeLabel(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

var docsPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>appshell API</title>
</head>
<body>
  <h1>appshell API</h1>
  <p>Machine readable description: <a href="/openapi.json">/openapi.json</a></p>
  <table>
    <tr><th>Method</th><th>Path</th><th>Description</th></tr>
    <tr><td>GET</td><td>/</td><td>Redirects here</td></tr>
    <tr><td>POST</td><td>/add_fruits?fruit=NAME</td><td>Adds a fruit (query, form or JSON body field <code>fruit</code>)</td></tr>
    <tr><td>GET</td><td>/fruits</td><td>Lists the fruits added so far</td></tr>
    <tr><td>GET</td><td>/healthz</td><td>Liveness probe</td></tr>
    <tr><td>GET</td><td>/metrics</td><td>Prometheus metrics</td></tr>
  </table>
</body>
</html>
`)

var openAPIDocument = map[string]any{
	"openapi": "3.0.3",
	"info":    map[string]any{
		"title":   "appshell",
		"version": "1.0.0",
	},
	"paths": map[string]any{
		"/add_fruits": map[string]any{
			"post": map[string]any{
				"summary":    "Add Fruits",
				"parameters": []any{
					map[string]any{
						"name":     "fruit",
						"in":       "query",
						"required": true,
						"schema":   map[string]any{"type": "string"},
					},
				},
				"responses": map[string]any{
					"200": map[string]any{"description": "Successful Response"},
					"422": map[string]any{"description": "Validation Error"},
				},
			},
		},
		"/fruits": map[string]any{
			"get": map[string]any{
				"summary":   "List Fruits",
				"responses": map[string]any{"200": map[string]any{"description": "Successful Response"}},
			},
		},
		"/healthz": map[string]any{
			"get": map[string]any{
				"summary":   "Health",
				"responses": map[string]any{"200": map[string]any{"description": "Successful Response"}},
			},
		},
	},
}
