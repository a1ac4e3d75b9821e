package jwtx

// Signer turns session claims into a compact signed token.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
	// Validate reports whether the signer holds usable key material.
	Validate() error
}

// NewSignerHS256 signs with a server-held shared secret.
func NewSignerHS256(secret []byte) (Signer, error) {
	return newHS256Signer(secret)
}

// NewSignerEdDSA signs with a PKCS8 PEM Ed25519 private key. The kid header
// is derived from the public key, so it changes whenever the key does.
func NewSignerEdDSA(pemKey []byte) (Signer, error) {
	return newEdDSASigner(pemKey)
}
