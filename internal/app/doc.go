// Package app wires the plug backend together.
//
// Layout:
//
//	domain/*        plain structs and enums shared by every layer
//	storage         store interfaces plus memory and postgres implementations
//	services        opportunity lifecycle, admission checks, matching,
//	                notification dispatch and scheduled scans
//	httpapi         HTTP surface with the data/errors/meta envelope
//	metrics         prometheus collectors on a dedicated registry
//	searchindex     pluggable opportunity index hooks
//
// New builds an Application from a Stores bundle; omitted stores default to
// a shared in-memory implementation so tests and local runs need no setup.
package app
