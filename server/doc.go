// Package server exposes the survey ledger over HTTP.
//
// It provides three route groups:
//
//   - /api: the public survey API (create, submit, read accessors,
//     decryption requests). Caller identity arrives as a declared principal
//     in the request body; wallet/identity plumbing is out of scope for the
//     ledger and is expected in front of this API.
//
//   - /oracle/register: decryption oracles register their signing key,
//     optionally backed by a TDX attestation binding the key to a measured
//     TEE image.
//
//   - /oracle/callback: the asynchronous decryption results, accepted only
//     when signed by a registered oracle key.
//
// Ledger error classes map onto HTTP status codes: validation 400,
// authorization 403, not-found 404, state and correlation conflicts 409.
package server
