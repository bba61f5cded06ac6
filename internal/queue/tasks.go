package queue

const (
	TypeIngestDocument = "ingest:document"
)

// IngestDocumentPayload asks a worker to ingest one file into an index.
type IngestDocumentPayload struct {
	PDFPath   string `json:"pdf_path"`
	IndexName string `json:"index_name"`
	RunID     string `json:"run_id"`
}
