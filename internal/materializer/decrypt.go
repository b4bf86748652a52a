package materializer

import "context"

// Decryptor is the external file-decryption codec boundary (§1 Out of
// scope, §6): invoked as a pure function, bytes in, bytes out. The
// production codec lives outside this service; the interface lets the
// pipeline depend on a contract instead of a concrete vendor implementation.
type Decryptor interface {
	Decrypt(ctx context.Context, artifactName string, payload []byte) ([]byte, error)
}

// PassthroughDecryptor treats payload as already decrypted. It stands in
// for the external codec in deployments (or tests) that supply plaintext
// artifacts directly; wiring a real codec means swapping this
// implementation at the composition root, not changing any pipeline code.
type PassthroughDecryptor struct{}

func (PassthroughDecryptor) Decrypt(_ context.Context, _ string, payload []byte) ([]byte, error) {
	return payload, nil
}

// EncryptedSuffix marks an artifact name as requiring decryption before
// archive extraction can proceed (§4.C "If the name ends with the
// proprietary encrypted suffix...").
const EncryptedSuffix = ".enc"
