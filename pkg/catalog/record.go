// Package catalog defines the data model shared by the training-sync
// pipeline: the raw document pulled from the resource catalog and the
// normalized entry shape the search index expects.
package catalog

// Document is one full snapshot retrieved from the catalog source.
// The source wraps its parent records in a "results" sequence.
type Document struct {
	Results []ParentRecord `json:"results"`
}

// ParentRecord is one top-level catalog item before transformation.
type ParentRecord struct {
	ID           string     `json:"ID"`
	CreationTime string     `json:"CreationTime"`
	EntityJSON   EntityJSON `json:"EntityJSON"`
}

// EntityJSON is the nested attribute bag carried by every parent record.
// Keys arrive underscore-formatted (the reader requests them that way).
type EntityJSON struct {
	ResourceName        string `json:"resource_name"`
	ResourceDescription string `json:"resource_description"`
	ResourceWebsite     string `json:"resource_website"`
	DataLicense         string `json:"data_license"`
	CostDescription     string `json:"cost_description"`
	ImportSource        string `json:"import_source"`
}

// Entry is the sink-shaped representation of one parent record.
// Subject must be globally unique per index generation.
type Entry struct {
	Subject   string                 `json:"subject"`
	VisibleTo []string               `json:"visible_to"`
	Content   map[string]interface{} `json:"content"`
}
