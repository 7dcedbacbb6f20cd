package nvmerr

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Combine merges a list of errors into a single one, discarding nil
// entries. It returns nil if every entry was nil. The code of the first
// non-nil error is preserved; if that error is untyped, codes.Unknown is
// used.
func Combine(errs ...error) error {
	var messages []string
	code := codes.Unknown
	first := true
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first {
			code = status.Code(err)
			first = false
		}
		messages = append(messages, err.Error())
	}
	if len(messages) == 0 {
		return nil
	}
	return status.Error(code, strings.Join(messages, "; "))
}
