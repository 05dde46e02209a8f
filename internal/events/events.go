package events

import "time"

// HarvestCompleteEvent is sent when a refresh run has written a new snapshot.
type HarvestCompleteEvent struct {
	Path      string    // local snapshot file
	Bucket    string    // S3 bucket, empty when publishing is off
	Key       string    // S3 archive key (e.g., "snapshots/wiki.example.org/2025-03-01T02-00-00Z.json")
	SourceURL string    // wiki that was harvested
	PageCount int       // pages in the snapshot
	Skipped   int       // pages left out after fetch errors
	Timestamp time.Time // when the snapshot was generated
}

// IngestionCompleteEvent is sent when a snapshot has been indexed.
type IngestionCompleteEvent struct {
	Source      string        // snapshot path or S3 key that was indexed
	DocsIndexed int           // Number of pages indexed
	Duration    time.Duration // How long ingestion took
	Errors      []string      // Any errors encountered (non-fatal)
}
