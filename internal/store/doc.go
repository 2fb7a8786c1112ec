// Package store persists repository records, their commit logs, and asset
// records in SQLite.
//
// Schema changes ship as golang-migrate files under migrations/files and are
// applied on Open. Trees are stored as one JSON column; SaveCommit writes the
// tree and the commit row in a single transaction so a commit either lands
// with its snapshot or not at all. Asset payloads are not stored here; see the
// blobstore package.
package store
