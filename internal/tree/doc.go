// Package tree implements the copy-on-write node hierarchy that backs every
// repository.
//
// Nodes are a tagged variant: a Folder body holds ordered children and a File
// body holds text content. Tree operations return new values and share
// untouched subtrees with the previous version, so callers holding an older
// Tree keep a consistent snapshot.
package tree
