package conduit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ResourceDescriptor describes a readable resource addressed by URI. A URI
// containing {param} placeholders is a template; templated descriptors
// carry per-parameter candidate values for the completion step.
type ResourceDescriptor struct {
	URI         string              `json:"uri"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	MimeType    string              `json:"mimeType,omitempty"`
	Completions map[string][]string `json:"-"`
}

// IsTemplate reports whether the descriptor's URI contains placeholders.
func (d ResourceDescriptor) IsTemplate() bool {
	return strings.Contains(d.URI, "{") && strings.Contains(d.URI, "}")
}

// ResourceContent is normalized fetched content. Exactly one read shape is
// produced per fetch: parsed JSON re-rendered as text, plain text wrapped
// as-is, or a binary-metadata stub for everything else.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// Fetcher retrieves content for one URI scheme.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) (ResourceContent, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, uri string) (ResourceContent, error)

func (f FetcherFunc) Fetch(ctx context.Context, uri string) (ResourceContent, error) {
	return f(ctx, uri)
}

// ResourceReader resolves URIs against registered descriptors and fetches
// content through scheme-keyed fetchers. Built at process start; immutable
// afterwards.
type ResourceReader struct {
	descriptors []ResourceDescriptor
	fetchers    map[string]Fetcher
}

// NewResourceReader creates a reader with the http and https schemes wired
// to an HTTPFetcher with a default client.
func NewResourceReader() *ResourceReader {
	r := &ResourceReader{fetchers: make(map[string]Fetcher)}
	hf := NewHTTPFetcher(nil)
	r.RegisterFetcher("http", hf)
	r.RegisterFetcher("https", hf)
	return r
}

// AddDescriptor registers a resource descriptor. Must be called before
// serving requests.
func (r *ResourceReader) AddDescriptor(d ResourceDescriptor) {
	r.descriptors = append(r.descriptors, d)
}

// RegisterFetcher sets the fetcher for a URI scheme, replacing any default.
func (r *ResourceReader) RegisterFetcher(scheme string, f Fetcher) {
	r.fetchers[scheme] = f
}

// Descriptors returns all registered descriptors in registration order.
func (r *ResourceReader) Descriptors() []ResourceDescriptor {
	return r.descriptors
}

// Read fetches and normalizes the content behind uri. The URI must match a
// registered descriptor (concrete equality, or a template whose placeholders
// bind the URI's segments) and carry a scheme with a registered fetcher.
func (r *ResourceReader) Read(ctx context.Context, uri string) (ResourceContent, error) {
	desc, ok := r.match(uri)
	if !ok {
		return ResourceContent{}, fmt.Errorf("resource not found: %s", uri)
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return ResourceContent{}, fmt.Errorf("invalid resource uri %q: %w", uri, err)
	}
	f, ok := r.fetchers[parsed.Scheme]
	if !ok {
		return ResourceContent{}, fmt.Errorf("no fetcher for scheme %q", parsed.Scheme)
	}

	content, err := f.Fetch(ctx, uri)
	if err != nil {
		return ResourceContent{}, fmt.Errorf("read %s: %w", uri, err)
	}
	content.URI = uri
	if content.MimeType == "" {
		content.MimeType = desc.MimeType
	}
	return content, nil
}

// match finds the descriptor covering uri: exact match first, then template
// expansion where each {param} placeholder binds one path segment.
func (r *ResourceReader) match(uri string) (ResourceDescriptor, bool) {
	for _, d := range r.descriptors {
		if d.URI == uri {
			return d, true
		}
	}
	for _, d := range r.descriptors {
		if d.IsTemplate() && templateMatches(d.URI, uri) {
			return d, true
		}
	}
	return ResourceDescriptor{}, false
}

// templateMatches reports whether uri instantiates the template: the two
// must have the same slash-separated segments, with {param} segments in the
// template matching any non-empty concrete segment.
func templateMatches(template, uri string) bool {
	tseg := strings.Split(template, "/")
	useg := strings.Split(uri, "/")
	if len(tseg) != len(useg) {
		return false
	}
	for i, t := range tseg {
		if strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}") {
			if useg[i] == "" {
				return false
			}
			continue
		}
		if t != useg[i] {
			return false
		}
	}
	return true
}

// Complete returns candidate values for a template parameter of the named
// templated descriptor, filtered by prefix. Missing descriptors or
// parameters degrade to an empty list.
func (r *ResourceReader) Complete(uri, param, prefix string) []string {
	for _, d := range r.descriptors {
		if d.URI != uri {
			continue
		}
		var out []string
		for _, v := range d.Completions[param] {
			if strings.HasPrefix(v, prefix) {
				out = append(out, v)
			}
		}
		return out
	}
	return nil
}

// --- HTTP fetcher ---

// maxResourceBodyBytes caps how much of a fetched body is read.
const maxResourceBodyBytes = 10 << 20 // 10MB

// HTTPFetcher fetches resources over HTTP(S) GET. Content-type decides the
// normalization: JSON bodies are parsed and re-rendered, text bodies pass
// through, anything else becomes a binary-metadata stub.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, uri string) (ResourceContent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return ResourceContent{}, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return ResourceContent{}, NetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ResourceContent{}, &ErrHTTP{Status: resp.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceBodyBytes))
	if err != nil {
		return ResourceContent{}, NetworkError(err)
	}

	ct := resp.Header.Get("Content-Type")
	mt, _, _ := mime.ParseMediaType(ct)
	return normalizeBody(uri, mt, body), nil
}

// normalizeBody converts a fetched body into ResourceContent based on its
// media type, falling back to a UTF-8 sniff when the header is absent.
func normalizeBody(uri, mediaType string, body []byte) ResourceContent {
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		// Re-indent so the model sees stable, readable JSON. Invalid JSON
		// despite the content type degrades to raw text.
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			pretty, err := json.MarshalIndent(v, "", "  ")
			if err == nil {
				return ResourceContent{URI: uri, MimeType: "application/json", Text: string(pretty)}
			}
		}
		return ResourceContent{URI: uri, MimeType: "application/json", Text: string(body)}

	case strings.HasPrefix(mediaType, "text/"):
		return ResourceContent{URI: uri, MimeType: mediaType, Text: string(body)}

	case mediaType == "" && utf8.Valid(body):
		return ResourceContent{URI: uri, MimeType: "text/plain", Text: string(body)}

	default:
		mt := mediaType
		if mt == "" {
			mt = "application/octet-stream"
		}
		return ResourceContent{
			URI:      uri,
			MimeType: mt,
			Text:     fmt.Sprintf("[binary content: %s, %d bytes]", mt, len(body)),
		}
	}
}
