package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aleksaelezovic/jsonld/pkg/jsonld"
	"github.com/aleksaelezovic/jsonld/pkg/rdf"
	"github.com/aleksaelezovic/jsonld/pkg/rdfio"
)

type loggerKey struct{}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument assigns a request id, applies CORS, answers preflight requests,
// and records metrics and an access log line for every request
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		logger := s.logger.With(zap.String("request_id", requestID))

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		switch r.Method {
		case http.MethodOptions:
			rec.WriteHeader(http.StatusOK)
		case http.MethodPost:
			r.Body = http.MaxBytesReader(rec, r.Body, s.cfg.MaxBodySize)
			h(rec, r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger)))
		default:
			s.writeError(rec, r, http.StatusMethodNotAllowed, "", "Method not allowed. Use POST")
		}

		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		s.metrics.duration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", elapsed))
	})
}

// requestLogger returns the request-scoped logger set by instrument
func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(*zap.Logger); ok {
		return l
	}
	return s.logger
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, statusCode int, code, message string) {
	s.requestLogger(r).Debug("request failed",
		zap.Int("status", statusCode),
		zap.String("code", code),
		zap.String("message", message))

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{Code: code, Message: message}}) // #nosec G104 - client went away
}

// writeFailure maps err to a status: JSON-LD and syntax errors are the
// client's fault, anything else is ours
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		s.writeError(w, r, http.StatusRequestEntityTooLarge, "", err.Error())
	case jsonld.CodeOf(err) != "":
		s.writeError(w, r, http.StatusBadRequest, string(jsonld.CodeOf(err)), err.Error())
	case errors.Is(err, rdf.ErrInvalidQuad):
		s.writeError(w, r, http.StatusBadRequest, string(jsonld.InvalidInput), err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusServiceUnavailable, "", err.Error())
	default:
		s.requestLogger(r).Error("internal error", zap.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "", err.Error())
	}
}

// writeJSON writes v as an indented JSON document
func (s *Server) writeJSON(w http.ResponseWriter, contentType string, v any) {
	w.Header().Set("Content-Type", contentType+"; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v) // #nosec G104 - client went away
}

// negotiateFormat picks the RDF serialization for the Accept header
func negotiateFormat(acceptHeader string) string {
	accept := strings.ToLower(acceptHeader)

	if strings.Contains(accept, rdfio.ContentTypeNTriples) {
		return rdfio.ContentTypeNTriples
	}
	if strings.Contains(accept, rdfio.ContentTypeJSONLD) {
		return rdfio.ContentTypeJSONLD
	}

	// Default to N-Quads
	return rdfio.ContentTypeNQuads
}

// requestOptions are the per-request overrides of the server defaults.
// Unset fields keep the default.
type requestOptions struct {
	Base                  *string         `json:"base"`
	ExpandContext         json.RawMessage `json:"expandContext"`
	CompactArrays         *bool           `json:"compactArrays"`
	CompactToRelative     *bool           `json:"compactToRelative"`
	Ordered               *bool           `json:"ordered"`
	ProcessingMode        *string         `json:"processingMode"`
	ProduceGeneralizedRdf *bool           `json:"produceGeneralizedRdf"`
	UseNativeTypes        *bool           `json:"useNativeTypes"`
	UseRdfType            *bool           `json:"useRdfType"`
	RdfDirection          *string         `json:"rdfDirection"`
	Embed                 *string         `json:"embed"`
	Explicit              *bool           `json:"explicit"`
	OmitDefault           *bool           `json:"omitDefault"`
	OmitGraph             *bool           `json:"omitGraph"`
	RequireAll            *bool           `json:"requireAll"`
}

// options overlays o on the server defaults
func (s *Server) options(r *http.Request, o *requestOptions) *jsonld.Options {
	opts := *s.defaults
	opts.Logger = s.requestLogger(r)
	if o == nil {
		return &opts
	}

	setString := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}

	setString(&opts.Base, o.Base)
	setString(&opts.ProcessingMode, o.ProcessingMode)
	setString(&opts.RdfDirection, o.RdfDirection)
	setBool(&opts.CompactArrays, o.CompactArrays)
	setBool(&opts.CompactToRelative, o.CompactToRelative)
	setBool(&opts.Ordered, o.Ordered)
	setBool(&opts.ProduceGeneralizedRdf, o.ProduceGeneralizedRdf)
	setBool(&opts.UseNativeTypes, o.UseNativeTypes)
	setBool(&opts.UseRdfType, o.UseRdfType)
	setBool(&opts.Explicit, o.Explicit)
	setBool(&opts.OmitDefault, o.OmitDefault)
	setBool(&opts.RequireAll, o.RequireAll)
	if o.Embed != nil {
		opts.Embed = jsonld.Embed(*o.Embed)
	}
	if o.OmitGraph != nil {
		v := *o.OmitGraph
		opts.OmitGraph = &v
	}
	if len(o.ExpandContext) > 0 {
		opts.ExpandContext = o.ExpandContext
	}
	return &opts
}

// queryOptions reads the overrides that make sense as URL parameters for
// the endpoints whose body is the document itself
func queryOptions(r *http.Request) *requestOptions {
	q := r.URL.Query()
	o := &requestOptions{}
	str := func(name string) *string {
		if !q.Has(name) {
			return nil
		}
		v := q.Get(name)
		return &v
	}
	flag := func(name string) *bool {
		if !q.Has(name) {
			return nil
		}
		v, err := strconv.ParseBool(q.Get(name))
		if err != nil {
			return nil
		}
		return &v
	}
	o.Base = str("base")
	o.ProcessingMode = str("processingMode")
	o.RdfDirection = str("rdfDirection")
	o.ProduceGeneralizedRdf = flag("produceGeneralizedRdf")
	o.UseNativeTypes = flag("useNativeTypes")
	o.UseRdfType = flag("useRdfType")
	o.Ordered = flag("ordered")
	return o
}
