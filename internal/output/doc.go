// Package output writes artifacts under the output root and removes the
// files a previous build produced that the current build did not.
//
// The build index is a UTF-8 text file listing one output-relative,
// slash-separated target per line. Every entry read back from it is
// containment-checked before anything is deleted.
package output
