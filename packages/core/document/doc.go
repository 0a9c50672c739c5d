// Package document defines the parsed form of a test file and loads it
// from YAML.
//
// A test file holds one or more YAML documents. Each document describes a
// single test: a name, optional include fragments contributing variables,
// and an ordered list of stages. Everything inside a stage beyond its name
// and delay directives is protocol specific and kept opaque here; the
// protocol plugins decode the blocks they recognise.
//
// Files may splice in sibling YAML files with the !include tag, which is
// resolved before decoding.
package document
