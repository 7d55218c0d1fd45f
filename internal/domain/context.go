// Package domain defines the shared contracts of the scan-orchestration
// core: request/verdict/DLQ schemas, queue and task-id names, and the
// sentinel error taxonomy every worker classifies against.
package domain

import "context"

// Context is an alias kept for symmetry with the rest of the codebase's
// port signatures, matching the convention used throughout this module's
// adapters and workers.
type Context = context.Context
