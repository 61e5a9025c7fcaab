// Package engine runs the units of a site in dependency order and writes
// what they produce under the output directory.
//
// A build is single-threaded: every unit runs to completion before the next
// one starts, and a unit may read the artifacts of the units it declared as
// dependencies through Context.Artifacts. Relative paths resolve against the
// source root carried by the Context; the process working directory is
// never changed.
package engine
