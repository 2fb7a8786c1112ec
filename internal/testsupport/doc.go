// Package testsupport holds helpers shared by package tests: temp-dir
// configs, opened stores and canned collaborator stubs.
package testsupport
