// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// AIRequest caps a single call to the hint/challenge generation backend.
const AIRequest = 30 * time.Second

// RunScript caps execution of an interpreted (python/javascript) submission.
const RunScript = 8 * time.Second

// RunBuild caps the restore/compile stage of a compiled (csharp/java)
// submission.
const RunBuild = 30 * time.Second

// RunCompiled caps the execution stage of a compiled submission.
const RunCompiled = 20 * time.Second

// RunQuery caps execution of a sandboxed SQL submission.
const RunQuery = 5 * time.Second
