// Package preflight backs the doctor command: environment checks that
// must hold before the memory server can run.
//
// Checks cover config validity, scope layout and write permission, free
// disk space, the process descriptor limit, and embedding provider
// reachability. Provider checks are advisory; retrieval degrades to
// full-text search when no embedder answers.
package preflight
