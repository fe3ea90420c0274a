package mcp

import (
	"html/template"
	"net/http"
)

var landingTemplate = template.Must(template.New("landing").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>docsync</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f8fafc; color: #0f172a; margin: 0; }
  main { max-width: 640px; margin: 4rem auto; padding: 0 1.5rem; }
  h1 { font-size: 1.6rem; margin-bottom: 0.25rem; }
  p.lead { color: #475569; margin-top: 0; }
  h2 { font-size: 0.8rem; text-transform: uppercase; letter-spacing: 0.08em; color: #64748b; margin-top: 2rem; }
  pre { background: #0f172a; color: #e2e8f0; border-radius: 6px; padding: 0.9rem; overflow-x: auto; font-size: 0.85rem; }
  code, .endpoint { font-family: "SF Mono", Menlo, monospace; }
  a { color: #0369a1; }
  li { margin-bottom: 0.35rem; }
</style>
</head>
<body>
<main>
  <h1>docsync</h1>
  <p class="lead">Semantic search over the documents synchronized from <code>{{.WatchDir}}</code>, served via the Model Context Protocol.</p>

  <h2>Connect</h2>
  <pre><code>claude mcp add docsync --transport http http://{{.Host}}/mcp</code></pre>

  <h2>Tools</h2>
  <ul>
    <li><code>search_chunks</code>: most similar passages for a question</li>
    <li><code>get_document_chunks</code>: one document's chunks, in order</li>
    <li><code>list_documents</code>: every indexed file name</li>
    <li><code>get_index_status</code>: counts, last sync and pending files</li>
  </ul>

  <h2>Endpoints</h2>
  <ul>
    <li><a href="/mcp" class="endpoint">/mcp</a> MCP Streamable HTTP</li>
    <li><a href="/health" class="endpoint">/health</a> health check</li>
  </ul>
</main>
</body>
</html>`))

// NewLandingHandler returns an HTTP handler that serves the landing page at /.
func NewLandingHandler(watchDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		landingTemplate.Execute(w, struct{ WatchDir, Host string }{watchDir, r.Host})
	}
}
