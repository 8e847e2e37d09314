// Package render proxies document generation to the rendering backend. The
// authenticated endpoint spends one credit per document, decrementing before
// the work and refunding when generation fails.
package render
