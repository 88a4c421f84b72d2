// Package record defines the unit of data flowing through the ingestion
// pipeline: one parsed article, or the classified error that stands in
// for it.
package record

// Status values a record can carry.
const (
	// StatusOK means the document was fetched and the content anchor found.
	StatusOK = "ok"

	// StatusNotFound means the document was fetched but holds no article.
	StatusNotFound = "not_found"

	// StatusFetchError means all fetch attempts failed or a terminal
	// HTTP status was returned.
	StatusFetchError = "fetch_error"

	// StatusError means an unexpected failure during fetch or parse.
	StatusError = "error"
)

// Record is the field map produced for one article identifier. Values
// are strings, string slices, or nil for fields the document lacked.
// Every record carries "id" and "status". A record is created once per
// identifier and never mutated after it is handed to the exporter.
type Record map[string]any

// New returns a record carrying only the identifier.
func New(id int) Record {
	return Record{"id": id}
}

// ID returns the article identifier, or 0 if missing.
func (r Record) ID() int {
	id, _ := r["id"].(int)
	return id
}

// Status returns the record status, or "" if missing.
func (r Record) Status() string {
	s, _ := r["status"].(string)
	return s
}

// OK reports whether the record holds successfully parsed content.
func (r Record) OK() bool {
	return r.Status() == StatusOK
}

// FetchFailure builds the record for an identifier whose fetch failed
// terminally. The error text is embedded so the artifact documents what
// went wrong.
func FetchFailure(id int, err error) Record {
	return Record{
		"id":     id,
		"status": StatusFetchError,
		"error":  err.Error(),
	}
}

// Unexpected builds the record for any other failure during fetch or
// parse.
func Unexpected(id int, err error) Record {
	return Record{
		"id":     id,
		"status": StatusError,
		"error":  err.Error(),
	}
}
