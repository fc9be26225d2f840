// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package failure classifies lockbox errors.
//
// Every error that crosses a package boundary in the sharing pipeline
// carries a [Kind]. The kind decides what the user is told and whether
// a caller may retry. Several kinds describe security events that must
// never be conflated: a wrong password ([AuthFailure]), a missing file
// ([GatewayUnavailable]) and a refused request ([AccessDenied]) each
// get their own sentence from [UserMessage].
//
// Construct errors with [New] or [Wrap] and classify them with [Is]
// and [KindOf], which walk wrap chains:
//
//	if failure.Is(err, failure.AccessDenied) {
//	    // never retried
//	}
//
// Collaborator implementations (the hub client, the hub store, the
// blob gateways) return kinded errors so the orchestrator and the
// resolver can react without matching on message text.
package failure
