package domain

// RawDocument represents opaque bytes read from a file or stream.
// It is the input to normalisation.
type RawDocument struct {
	// URI is the original location (file path, URL, etc).
	URI string

	// MIMEType is the content type (e.g., "text/markdown").
	MIMEType string

	// Content is the raw bytes.
	Content []byte

	// Metadata contains caller-supplied key-value pairs.
	Metadata map[string]any
}

// NormalisedText is the plain text extracted from a RawDocument.
type NormalisedText struct {
	// Text is the extracted plain text.
	Text string

	// Meta holds attributes discovered during normalisation
	// (title, format, mime_type) merged over RawDocument.Metadata.
	Meta map[string]any
}
