// Package ingest turns an uploaded media asset into indexed repository
// content.
//
// Each asset walks a forward-only state machine (pending, transcribing,
// detecting, indexed; images skip transcribing). Every status change is
// committed to the repository tree, and the final commit carries the asset's
// metadata document, its caption track and its entry in scenes/scenes.json.
// Collaborator failures never stop an asset: the failing stage logs a warning
// and the pipeline continues with an empty result.
package ingest
