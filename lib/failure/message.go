// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package failure

// UserMessage returns the sentence shown to a person for err. The
// security-relevant kinds each have their own wording so a wrong
// password is never reported as a missing file or a refused request.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case RecipientKeyMissing:
		return "A recipient has not published an encryption key yet, so nothing was shared. Ask them to run 'lockbox init' first."
	case UploadFailure:
		return "The encrypted file could not be uploaded. Nothing was shared."
	case MetadataPublishFailure:
		return "The encrypted file was uploaded but could not be registered, so recipients cannot open it. The upload was recorded for cleanup."
	case AccessDenied:
		return "Access denied: " + err.Error()
	case AuthFailure:
		return "Decryption failed: the key, password or data did not verify. The data may have been tampered with, or the password is wrong."
	case GatewayUnavailable:
		return "The encrypted file could not be fetched from any gateway. It may be missing or the gateways may be down."
	case NotFound:
		return "Not found: " + err.Error()
	case Invalid:
		return "Invalid input: " + err.Error()
	case Conflict:
		return "Conflict: " + err.Error()
	case Unauthenticated:
		return "The hub rejected your credentials. Check hub.token_file in your configuration."
	case Transient:
		return "A network error occurred; try again later: " + err.Error()
	default:
		return err.Error()
	}
}

// ExitCode maps err's kind to a process exit status. Distinct codes
// let scripts tell the security-relevant outcomes apart.
func ExitCode(err error) int {
	switch KindOf(err) {
	case "":
		return 0
	case Invalid:
		return 2
	case RecipientKeyMissing:
		return 3
	case UploadFailure:
		return 4
	case MetadataPublishFailure:
		return 5
	case AccessDenied:
		return 6
	case AuthFailure:
		return 7
	case GatewayUnavailable:
		return 8
	case NotFound:
		return 9
	case Conflict:
		return 10
	case Unauthenticated:
		return 11
	case Transient:
		return 12
	default:
		return 1
	}
}
