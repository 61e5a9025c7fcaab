// Package workspace manages the output directory of a build run. An output
// of ":temp:" selects a throwaway directory that is created on demand and
// removed on Cleanup; any other value is used as given and never removed.
//
// Child processes inherit a temporary directory from their parent through
// the SITEPRESS_TEMP_OUTPUT environment variable, so that every rebuild in
// monitor mode and the serve process see the same directory.
package workspace
