// Package ledger implements the confidential survey ledger: survey
// lifecycle, exactly-once encrypted responses, homomorphic running sums,
// and the request/callback handshake with the external decryption oracle.
//
// The ledger never holds plaintext answers. Respondents submit external
// ciphertexts with input-validity proofs; the coprocessor imports them into
// opaque handles which are all the ledger ever stores. Per-question running
// sums are maintained by forwarding handles to the coprocessor's homomorphic
// add. Plaintext exists inside the ledger only after a one-time reveal: the
// creator or the respondent opens a decryption request, the oracle answers
// asynchronously with a signed result matched back by correlation id, and
// the revealed answers are stored terminally. A pair that has been revealed
// can never be decrypted again.
//
// All mutating operations are strictly serialized behind the ledger mutex
// and are all-or-nothing: every rejection (validation, state, authorization,
// not-found, correlation) leaves the ledger in its prior state. The one
// asynchronous actor is the oracle; its callback may arrive at any time,
// from any execution context, or never. A request whose callback never
// arrives stays pending forever; there is no timeout or cancellation.
//
// State is kept in in-memory arenas addressed by survey id and principal,
// with an optional write-through Store so reveals remain one-time across
// restarts. Observable events (survey-created, response-submitted,
// decryption-requested, response-revealed, survey-paused) are published to
// subscriber channels, never by calling into UI code.
package ledger
