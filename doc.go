// Package oauth implements the core of an OAuth 2.1 authorization server:
// grant state machines (authorization code with PKCE, client credentials,
// refresh token with rotation, resource owner password, implicit), token
// minting in opaque or JWT form, and the introspection, revocation and
// verification queries that go with them.
//
// The engine is transport-agnostic. A caller parses HTTP requests into
// TokenRequest or AuthorizeRequest values, invokes the engine, and renders
// the structured responses and *Error values back onto the wire. Resource
// owner authentication, consent UX and client registration are likewise the
// caller's concern; the engine begins where a validated request ends.
//
// Construction follows the pattern:
//
//	store := memory.New()
//	engine, err := oauth.New(store, nil, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	engine.SetAuditor(security.NewAuditor(logger, true))
//
// The zero configuration is the secure one: refresh token rotation on, PKCE
// required for public clients, password and implicit grants disabled, opaque
// tokens. Every relaxation is an explicit Config field and is logged as a
// security warning at construction.
//
// Storage backends implement storage.Store; the memory and valkey packages
// ship production implementations. Optional store capabilities
// (storage.RefreshTokenConsumer, storage.PairSaver, storage.FamilyRevoker,
// storage.UserClientRevoker) unlock atomic rotation, all-or-nothing pair
// persistence and the theft mitigations; the engine degrades loudly, never
// silently, when a backend lacks one.
package oauth
