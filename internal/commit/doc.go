// Package commit makes every repository mutation auditable.
//
// An Engine appends a locked commits/<id>.json node describing the change,
// writes the tree and commit row in one transaction and then notifies
// observers such as the git mirror and metrics. Ids are zero-padded and
// always one past the highest id already under commits/.
package commit
