package token

// OpaqueCodec issues random bearer strings. The token value is the storage
// key; there is nothing to decode.
type OpaqueCodec struct{}

// NewOpaqueCodec returns the opaque access-token strategy.
func NewOpaqueCodec() *OpaqueCodec {
	return &OpaqueCodec{}
}

// Mint returns a fresh random token. The claims are persisted by the caller;
// none of them are encoded into the token value.
func (*OpaqueCodec) Mint(Claims) (string, error) {
	return NewOpaque(), nil
}

// Decode always returns ErrNotSelfContained.
func (*OpaqueCodec) Decode(string) (*Claims, error) {
	return nil, ErrNotSelfContained
}
