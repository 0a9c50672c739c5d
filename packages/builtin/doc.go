// Package builtin provides the functions callable from template
// expressions in test files.
//
// Available functions:
//   - uuid(): random UUID v4
//   - now(): current UTC time in RFC 3339 format
//   - timestamp(): current Unix timestamp
//   - randomInt(min, max): random integer in the inclusive range
//   - randomString(length): random alphanumeric string
//   - base64(value): base64-encode a string
//
// Functions are invoked with the {{ functionName(args) }} syntax.
package builtin
