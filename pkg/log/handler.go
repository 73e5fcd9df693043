package log

import (
	"github.com/cockroachdb/errors"
)

// marshalStack is installed as zerolog.ErrorStackMarshaler.
// It pulls the stack trace that cockroachdb/errors records in the safe details
// of errors created with WithStack.
func marshalStack(err error) interface{} {
	if st := extractStacktrace(err); st != "" {
		return st
	}
	return nil
}

func extractStacktrace(err error) string {
	for e := err; e != nil; e = errors.UnwrapOnce(e) {
		safeDetails := errors.GetSafeDetails(e).SafeDetails
		if len(safeDetails) > 0 && safeDetails[0] != "" {
			return safeDetails[0]
		}
	}
	return ""
}
