package cmr

import "fmt"

// Feed is the top-level envelope of CMR JSON search responses.
type Feed[T any] struct {
	Feed *FeedBody[T] `json:"feed"`
}

// FeedBody holds the result entries of a search response.
type FeedBody[T any] struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Entry *[]T   `json:"entry"`
}

// CollectionEntry is one result of a collection search.
type CollectionEntry struct {
	ID         string  `json:"id,omitempty"`
	ShortName  *string `json:"short_name"`
	VersionID  string  `json:"version_id,omitempty"`
	Title      string  `json:"title,omitempty"`
	DatasetID  string  `json:"dataset_id,omitempty"`
	Summary    string  `json:"summary,omitempty"`
	TimeStart  string  `json:"time_start,omitempty"`
	TimeEnd    string  `json:"time_end,omitempty"`
	DataCenter string  `json:"data_center,omitempty"`
}

// GranuleEntry is one result of a granule search.
type GranuleEntry struct {
	ID               string `json:"id,omitempty"`
	Title            string `json:"title,omitempty"`
	ProducerGranule  string `json:"producer_granule_id,omitempty"`
	CollectionConcID string `json:"collection_concept_id,omitempty"`
	TimeStart        string `json:"time_start,omitempty"`
	TimeEnd          string `json:"time_end,omitempty"`
	Links            []Link `json:"links"`
}

// Link is a related URL attached to a granule.
type Link struct {
	Href     string `json:"href"`
	Rel      string `json:"rel,omitempty"`
	Type     string `json:"type,omitempty"`
	Title    string `json:"title,omitempty"`
	Hreflang string `json:"hreflang,omitempty"`
	Inherit  bool   `json:"inherited,omitempty"`
}

// entries returns the feed entries or a reason describing the missing part.
func (f Feed[T]) entries() ([]T, string) {
	if f.Feed == nil {
		return nil, `missing "feed" object`
	}
	if f.Feed.Entry == nil {
		return nil, `missing "feed.entry" list`
	}
	return *f.Feed.Entry, ""
}

// collectionNames extracts short names in response order.
func collectionNames(entries []CollectionEntry) ([]CollectionName, string) {
	names := make([]CollectionName, 0, len(entries))
	for i, entry := range entries {
		if entry.ShortName == nil {
			return nil, fmt.Sprintf("entry %d has no short_name", i)
		}
		names = append(names, *entry.ShortName)
	}
	return names, ""
}

// granuleReferences extracts the first link href of each entry in response
// order.
func granuleReferences(entries []GranuleEntry) ([]GranuleReference, string) {
	refs := make([]GranuleReference, 0, len(entries))
	for i, entry := range entries {
		if len(entry.Links) == 0 {
			return nil, fmt.Sprintf("entry %d has no links", i)
		}
		if entry.Links[0].Href == "" {
			return nil, fmt.Sprintf("entry %d has an empty first link href", i)
		}
		refs = append(refs, entry.Links[0].Href)
	}
	return refs, ""
}
