// Package ingest runs one ingestion pass: probe the dashboard for its
// version, then fetch, normalize and store every dataset in registry order.
//
// A failed version probe fails the run before anything is written. A failed
// dataset is recorded on the run and the remaining datasets still run, so a
// run ends complete, partial or failed. Records are always appended; running
// twice over the same upstream data stores it twice.
package ingest
