// Package identity maps an inbound request to the subject a quota applies
// to: a tier and an identity string.
//
// Signed-in callers are identified as "user:{id}" and anonymous callers as
// "ip:{addr}". Authentication itself happens upstream; HeaderResolver trusts
// the headers an auth gateway sets. Resolution never fails from the
// caller's point of view: Resolve falls back to the anonymous tier keyed by
// client IP when the configured resolver returns an error.
package identity
