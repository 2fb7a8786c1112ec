// Package scenes maintains scenes/scenes.json, the project's semantic index:
// one {id, name, description, tags} entry per analysed asset.
package scenes
