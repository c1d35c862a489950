package training

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// scriptTimeLayout is an ISO-8601 UTC instant with millisecond precision and
// colons replaced so the result is safe in object keys.
const scriptTimeLayout = "2006-01-02T15-04-05.000Z"

func TrainingFilePath(jobID uuid.UUID, filename string) string {
	return fmt.Sprintf("training/%s/%s", jobID, filename)
}

func ValidationFilePath(jobID uuid.UUID, filename string) string {
	return fmt.Sprintf("validation/%s/%s", jobID, filename)
}

func ScriptPath(jobID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("scripts/%s/%s-script.py", jobID, at.UTC().Format(scriptTimeLayout))
}
