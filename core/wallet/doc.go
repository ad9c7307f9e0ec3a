// Copyright 2025 The go-tide Authors
// This file is part of the go-tide library.

/*
Package wallet implements the authorization-and-execution engine for
programmable multi-key smart accounts with relayer-sponsored Intents.

# Architecture

The engine is composed of four layers around a per-account state store:

 1. KeyStore - each account's registry of authorized credentials
    (secp256k1, P-256, WebAuthn, cross-account references) and their
    permission class (super-admin vs. restricted).

 2. SignatureDispatcher - resolves a wrapped signature to a registered key
    and verifies it against the intent digest, including one-hop delegated
    verification against another account.

 3. NonceSequencer - per-(account, sequence-key) counters with a reserved
    multichain stream that admits one execution per context instead of
    monotonic ordering.

 4. GuardedExecutor - call allow-lists and rolling spend limits applied to
    every call a restricted key executes.

The Orchestrator ties these together into the per-Intent pipeline.

# Intent Flow

	Relayer submits encoded Intent
	    → Orchestrator.Execute:
	        1. Decode (RLP)
	        2. Gas budget precheck
	        3. Expiry and nonce validation
	        4. Digest + signature verification
	        5. Nonce consumption
	        6. Pre-calls (nested signed sub-Intents)
	        7. Payment pull from payer or funder
	        8. Guarded execution of the main calls (checkpointed)
	        9. Relayer settlement (priority/auction modulated)

Failures are returned as 4-byte status selectors, never as environment
aborts, so a batch of independently submitted Intents reports per-item
outcomes without unwinding each other. The relayer is compensated even when
the account's own calls revert: payment sits outside the checkpoint that
wraps step 8.

All engine state mutations go through a journal so any phase can be rolled
back to a checkpoint within the enclosing state transition.
*/
package wallet
