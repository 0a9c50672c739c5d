// Package jsonmatch compares decoded JSON values the way expected
// blocks are written: objects are subset matches, lists match by length
// and order, and numbers compare across Go numeric types.
package jsonmatch
