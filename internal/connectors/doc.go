// Package connectors holds sources that feed files into ingestion.
// The filesystem connector walks local directories and watches them for
// changes so edited files can be re-ingested.
package connectors
