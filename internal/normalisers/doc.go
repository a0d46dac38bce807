// Package normalisers turns raw file content into plain text. Each
// sub-package handles one family of MIME types; the Registry in this
// package dispatches to the best match.
//
// Normalisers are registered with the Registry at startup.
package normalisers
