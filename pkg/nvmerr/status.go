package nvmerr

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Wrap prepends a string to the message of an existing error, keeping
// its original code intact.
func Wrap(err error, msg string) error {
	p := status.Convert(err).Proto()
	p.Message = fmt.Sprintf("%s: %s", msg, p.Message)
	return status.ErrorProto(p)
}

// Wrapf prepends a formatted string to the message of an existing error.
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WrapWithCode prepends a string to the message of an existing error,
// while replacing the error code.
func WrapWithCode(err error, code codes.Code, msg string) error {
	p := status.Convert(err).Proto()
	p.Code = int32(code)
	p.Message = fmt.Sprintf("%s: %s", msg, p.Message)
	return status.ErrorProto(p)
}

// WrapfWithCode prepends a formatted string to the message of an
// existing error, while replacing the error code.
func WrapfWithCode(err error, code codes.Code, format string, args ...interface{}) error {
	return WrapWithCode(err, code, fmt.Sprintf(format, args...))
}

// Code extracts the gRPC status code carried by err, or codes.Unknown
// if err does not carry one.
func Code(err error) codes.Code {
	return status.Code(err)
}
