package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
	"github.com/aleksaelezovic/jsonld/pkg/rdfio"
)

// apiRequest is the body of the /expand, /compact, /flatten and /frame
// endpoints. Input, Context and Frame are JSON documents or URL strings.
type apiRequest struct {
	Input   json.RawMessage `json:"input"`
	Context json.RawMessage `json:"context"`
	Frame   json.RawMessage `json:"frame"`
	Options *requestOptions `json:"options"`
}

// decodeRequest reads the request envelope and parses its documents
func decodeRequest(r *http.Request) (*apiRequest, any, error) {
	var req apiRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return nil, nil, &jsonld.Error{Code: jsonld.InvalidInput, Message: "invalid request body", Err: err}
	}
	if len(req.Input) == 0 {
		return nil, nil, &jsonld.Error{Code: jsonld.InvalidInput, Message: `missing "input"`}
	}
	input, err := parseRaw(req.Input)
	if err != nil {
		return nil, nil, err
	}
	return &req, input, nil
}

// parseRaw keeps a JSON string as a Go string so the processor treats it as
// a URL to load
func parseRaw(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return jsonld.ParseJSON(bytes.NewReader(raw))
}

// handleRoot provides information about the endpoint
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		BaseURL        string
		ProcessingMode string
		ContentTypes   []string
	}{
		BaseURL:        fmt.Sprintf("%s://%s", scheme, r.Host),
		ProcessingMode: s.defaults.ProcessingMode,
		ContentTypes:   rdfio.SupportedContentTypes(),
	}
	_ = rootPage.Execute(w, data) // #nosec G104 - client went away
}

var rootPage = template.Must(template.New("root").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>JSON-LD Processor</title>
    <style>
        body { margin: 0; font-family: Arial, sans-serif; }
        .header { background: #2c3e50; color: white; padding: 15px 20px; }
        .header h1 { margin: 0; font-size: 24px; font-weight: 500; }
        main { padding: 10px 20px; }
        code { background: #eee; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>JSON-LD Processor</h1>
        <div>Processing mode: <code>{{.ProcessingMode}}</code></div>
    </div>
    <main>
        <h2>Endpoints</h2>
        <ul>
            <li><code>POST {{.BaseURL}}/expand</code></li>
            <li><code>POST {{.BaseURL}}/compact</code></li>
            <li><code>POST {{.BaseURL}}/flatten</code></li>
            <li><code>POST {{.BaseURL}}/frame</code></li>
            <li><code>POST {{.BaseURL}}/tordf</code> JSON-LD in, N-Quads out</li>
            <li><code>POST {{.BaseURL}}/fromrdf</code> RDF in, expanded JSON-LD out</li>
            <li><code>GET {{.BaseURL}}/metrics</code></li>
        </ul>
        <p>Request body: <code>{"input": ..., "context": ..., "frame": ..., "options": {...}}</code></p>
        <h2>RDF media types</h2>
        <ul>{{range .ContentTypes}}<li><code>{{.}}</code></li>{{end}}</ul>
    </main>
</body>
</html>
`))

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	req, input, err := decodeRequest(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	p := jsonld.NewProcessor(s.options(r, req.Options))
	expanded, err := p.Expand(r.Context(), input)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, rdfio.ContentTypeJSONLD, expanded)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	req, input, err := decodeRequest(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	localContext, err := parseRaw(req.Context)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if localContext == nil {
		s.writeError(w, r, http.StatusBadRequest, string(jsonld.InvalidInput), `missing "context"`)
		return
	}

	p := jsonld.NewProcessor(s.options(r, req.Options))
	compacted, err := p.Compact(r.Context(), input, localContext)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, rdfio.ContentTypeJSONLD, compacted)
}

func (s *Server) handleFlatten(w http.ResponseWriter, r *http.Request) {
	req, input, err := decodeRequest(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	localContext, err := parseRaw(req.Context)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	p := jsonld.NewProcessor(s.options(r, req.Options))
	flattened, err := p.Flatten(r.Context(), input, localContext)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, rdfio.ContentTypeJSONLD, flattened)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	req, input, err := decodeRequest(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	frame, err := parseRaw(req.Frame)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if frame == nil {
		s.writeError(w, r, http.StatusBadRequest, string(jsonld.InvalidInput), `missing "frame"`)
		return
	}

	p := jsonld.NewProcessor(s.options(r, req.Options))
	framed, err := p.Frame(r.Context(), input, frame)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, rdfio.ContentTypeJSONLD, framed)
}

// handleToRDF converts the JSON-LD request body to N-Quads, or N-Triples
// when the client asks for them
func (s *Server) handleToRDF(w http.ResponseWriter, r *http.Request) {
	opts := s.options(r, queryOptions(r))
	parser := &rdfio.JSONLDParser{Options: opts}
	quads, err := parser.Parse(r.Context(), r.Body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	format := negotiateFormat(r.Header.Get("Accept"))
	if format == rdfio.ContentTypeJSONLD {
		format = rdfio.ContentTypeNQuads
	}
	s.writeRDF(w, r, format, opts, quads)
}

// handleFromRDF converts an RDF request body to expanded JSON-LD. The body
// format follows Content-Type and defaults to N-Quads.
func (s *Server) handleFromRDF(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = rdfio.ContentTypeNQuads
	}
	opts := s.options(r, queryOptions(r))
	parser, err := rdfio.NewParser(contentType, opts)
	if err != nil {
		s.writeError(w, r, http.StatusUnsupportedMediaType, "",
			fmt.Sprintf("Unsupported content type: %s. Supported types: %v", contentType, rdfio.SupportedContentTypes()))
		return
	}

	quads, err := parser.Parse(r.Context(), r.Body)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeRDF(w, r, rdfio.ContentTypeJSONLD, opts, quads)
}

// writeRDF serializes quads into a buffer first so a failure can still be
// reported with a proper status
func (s *Server) writeRDF(w http.ResponseWriter, r *http.Request, format string, opts *jsonld.Options, quads []*rdf.Quad) {
	ser, err := rdfio.NewSerializer(format, opts)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := ser.Serialize(r.Context(), &buf, quads); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", ser.ContentType()+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, &buf) // #nosec G104 - client went away
}
