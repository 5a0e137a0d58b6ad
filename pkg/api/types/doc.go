// Package types defines the JSON bodies returned by the HTTP API.
//
// Every error body carries an "error" code in PascalCase, a human readable
// "message" and a "timestamp":
//
//	{"error": "NotFound", "message": "...", "timestamp": "2025-01-15T14:30:00Z"}
//
// A quota rejection (429) extends this with the fields of the quota result
// and the links a client needs to offer signup or an upgrade. See
// RateLimitExceeded.
package types
