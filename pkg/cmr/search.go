package cmr

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	internalhttp "github.com/example/go-maap/internal/http"
)

// GranuleQuery describes a granule search within a bounding box.
type GranuleQuery struct {
	ShortName CollectionName
	Box       BoundingBox
	// PageSize is omitted from the query when zero so the catalog default applies.
	PageSize int
}

// Encode renders the raw query string. Square brackets and commas are kept
// literal, e.g. short_name=ABLVIS2&bounding_box[]=0,0,0,0.
func (q GranuleQuery) Encode() string {
	var b queryBuilder
	b.add("short_name", q.ShortName)
	b.add("bounding_box[]", q.Box.String())
	if q.PageSize > 0 {
		b.add("page_size", strconv.Itoa(q.PageSize))
	}
	return b.String()
}

// collectionQuery renders the provider-scoped collection search query.
func collectionQuery(provider string) string {
	var b queryBuilder
	b.add("provider", provider)
	b.add("page_size", strconv.Itoa(CollectionPageSize))
	return b.String()
}

// SearchCollections lists the short names of the provider's collections in
// response order. A single page of at most CollectionPageSize results is
// requested.
func (c *Client) SearchCollections(ctx context.Context) ([]CollectionName, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	var feed Feed[CollectionEntry]
	endpoint, err := c.getFeed(ctx, "collections.json", collectionQuery(c.provider), &feed)
	if err != nil {
		return nil, err
	}
	entries, reason := feed.entries()
	if reason != "" {
		return nil, &ParseError{Endpoint: endpoint, Reason: reason}
	}
	names, reason := collectionNames(entries)
	if reason != "" {
		return nil, &ParseError{Endpoint: endpoint, Reason: reason}
	}
	return names, nil
}

// SearchGranules lists the first link of every granule of collection that
// intersects box, in response order. The box is sent as given.
func (c *Client) SearchGranules(ctx context.Context, collection CollectionName, box BoundingBox) ([]GranuleReference, error) {
	return c.SearchGranulesQuery(ctx, GranuleQuery{ShortName: collection, Box: box})
}

// SearchGranulesQuery runs a granule search for an explicit query.
func (c *Client) SearchGranulesQuery(ctx context.Context, query GranuleQuery) ([]GranuleReference, error) {
	if c == nil {
		return nil, ErrNilClient
	}
	var feed Feed[GranuleEntry]
	endpoint, err := c.getFeed(ctx, "granules.json", query.Encode(), &feed)
	if err != nil {
		return nil, err
	}
	entries, reason := feed.entries()
	if reason != "" {
		return nil, &ParseError{Endpoint: endpoint, Reason: reason}
	}
	refs, reason := granuleReferences(entries)
	if reason != "" {
		return nil, &ParseError{Endpoint: endpoint, Reason: reason}
	}
	return refs, nil
}

// getFeed issues one GET against {baseURL}/search/{resource} and decodes the
// body into out. It returns the endpoint used so callers can report it.
func (c *Client) getFeed(ctx context.Context, resource, rawQuery string, out any) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "search", resource)
	if err != nil {
		return resource, &TransportError{Endpoint: c.baseURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return endpoint, &TransportError{Endpoint: endpoint, Err: err}
	}
	req.URL.RawQuery = rawQuery
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return endpoint, &TransportError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if !internalhttp.IsSuccess(resp.StatusCode) {
		return endpoint, &ResponseError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(internalhttp.ReadErrorBody(resp)),
		}
	}

	if err := internalhttp.DecodeJSON(resp.Body, out); err != nil {
		return endpoint, &ParseError{Endpoint: endpoint, Err: err}
	}
	return endpoint, nil
}

// queryBuilder keeps parameters in insertion order, unlike url.Values.
type queryBuilder struct {
	parts []string
}

func (b *queryBuilder) add(key, value string) {
	b.parts = append(b.parts, key+"="+escapeQueryValue(value))
}

func (b *queryBuilder) String() string {
	return strings.Join(b.parts, "&")
}

// escapeQueryValue escapes a value but leaves commas literal, which CMR
// accepts and which keeps coordinate lists readable in logs.
func escapeQueryValue(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "%2C", ",")
}
