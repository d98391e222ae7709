// Package oracle defines the boundary between the survey ledger and its two
// external cryptographic collaborators: the coprocessor that imports, grants
// and homomorphically combines ciphertexts, and the decryption oracle that
// turns ciphertext handles back into plaintext through an asynchronous
// callback.
//
// The ledger never sees plaintext and never implements cryptography itself.
// Everything it needs from the outside world is expressed here:
//
//  1. Coprocessor: proof-verified ciphertext import, per-principal permission
//     grants, and homomorphic addition over opaque handles.
//
//  2. DecryptionOracle: accepts a batch of handles and returns a correlation
//     id. The plaintext arrives later, from an unspecified execution context,
//     as a signed DecryptionResult delivered to the ledger's callback
//     endpoint. The correlation id is the only link between the two halves.
//
// The package also ships a dev-grade coprocessor (see dev.go) and in-memory
// mocks so the full request/callback protocol can be exercised without FHE
// hardware or an oracle network.
package oracle
