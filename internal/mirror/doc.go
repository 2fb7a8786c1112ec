// Package mirror replays repository commits into plain git repositories so
// projects can be inspected, diffed and backed up with ordinary git tools.
package mirror
