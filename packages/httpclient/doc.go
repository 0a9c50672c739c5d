// Package httpclient implements the HTTP protocol plugin.
//
// It wraps the standard library's http package with the knobs the global
// configuration exposes (timeout, redirect policy, TLS verification,
// request-per-second pacing) and keeps a cookie jar per test so a login
// stage's cookies reach the stages after it.
//
// A stage belongs to this plugin when it carries a "request" block; the
// optional "response" block holds the expected status code, headers and
// JSON body plus "save" directives extracted with gjson paths.
package httpclient
