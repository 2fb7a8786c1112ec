// Command vidrepo manages video project repositories: a versioned file tree
// per project, media uploads with AI indexing, and a commit history. The
// same facade is served over HTTP by `vidrepo serve`.
package main
