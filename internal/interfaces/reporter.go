package interfaces

import "github.com/ternarybob/siteverify/internal/models"

// Reporter is the sink that receives one record per check.
// Implementations must be safe for concurrent use; page batteries report in parallel.
type Reporter interface {
	Report(result models.CheckResult)
}
