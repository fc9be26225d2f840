// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package share encrypts a blob for a set of recipients and publishes
// it.
//
// [Orchestrator.Share] runs the steps in a fixed causal order:
//
//  1. Validate the blob and recipient list (duplicates collapse; an
//     empty list is failure.Invalid).
//  2. Resolve every recipient's public key from the directory. Any
//     missing key aborts with failure.RecipientKeyMissing before
//     anything is uploaded.
//  3. Seal and upload the optional preview through the same single-blob
//     helper the main blob uses. The helper cannot produce previews,
//     so a preview never has a preview.
//  4. Seal the blob: compress, build the envelope header (which names
//     the preview address), encrypt under a fresh content key with the
//     encoded header as associated data, and wrap that key once per
//     recipient. Upload the ciphertext (failure.UploadFailure; nothing
//     is published and an uploaded preview is recorded as orphaned).
//  5. Publish the preview envelope, then the main one
//     (failure.MetadataPublishFailure; every upload of the share is
//     recorded in the orphan ledger and logged).
//  6. Hand the non-sensitive index entry to the index. Its failure is
//     logged and does not fail the share.
//
// Every collaborator call gets its own deadline. A deadline is a hard
// failure of that step, exactly like any other error.
package share
