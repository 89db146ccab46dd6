// Package gate implements the verification engine and the facade the HTTP
// server and the CLI call into.
//
// # Verification Order
//
// Engine.Verify runs five checks and stops at the first that fails:
//
//  1. Denylist: the message contains a globally forbidden term.
//  2. Policy lookup: the sector has no rule.
//  3. Keyword: the rule's keyword is not a substring of the message.
//  4. Number: the message holds no numeric literal.
//  5. Threshold: the first number is greater than the rule's threshold.
//
// A message that passes all five is admitted. Matching is case-insensitive
// over NFC-normalized text.
//
// # Recording
//
// Gate.Evaluate records every verdict, admitted or blocked, in the audit
// ledger together with the TOTAL, PASS and BLOCK counters. If the ledger
// fails nothing is recorded and a StorageUnavailableError is returned.
//
//	g := gate.New(backend, backend, gate.NewDenylist([]string{"hack", "bypass"}),
//	    gate.WithLogger(logger),
//	    gate.WithObserver(collector),
//	)
//	res, err := g.Evaluate(ctx, "HAVACILIK", "Basınç 0.8 psi")
package gate
