// Package scope implements OAuth scope sets and the policy rules governing
// which scopes a client may be granted.
//
// Scopes are opaque, case-sensitive strings compared with set semantics. The
// wire form is the space-delimited list from RFC 6749 section 3.3; Parse and
// Set.String convert between the wire form and Set.
//
// The package also provides Requirements, a registry of per-endpoint scope
// demands that resource servers consult when deciding whether a token's
// granted scopes are sufficient. The engine itself never authorizes resource
// access; it only issues and validates the scope claim on a token.
package scope
