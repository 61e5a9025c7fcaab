package engine

// Result is what a page function returns for one invocation. A nil Result
// means "nothing to write" and is skipped.
type Result struct {
	// Target overrides the unit's resolved target when set.
	Target  string
	Content []byte
	// Binary content bypasses the output text encoding.
	Binary bool
	// Metadata is kept with the artifact for dependent units to read.
	Metadata map[string]any
}

// Text returns a textual Result for the unit's default target.
func Text(content string) *Result {
	return &Result{Content: []byte(content)}
}

// Artifact records one file written during the current build.
type Artifact struct {
	Task   string
	Target string
	// Source is the source-relative path the artifact came from, if any.
	Source   string
	Metadata map[string]any
}
