package runlog

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Archive saves the captured output of supervised runs, one file per run.
type Archive struct {
	BaseDir string
}

func New(baseDir string) *Archive {
	return &Archive{BaseDir: baseDir}
}

// Save writes one run's output and returns the file path. Filenames carry the
// stage, a timestamp and a short run id so repeated runs never collide.
func (a *Archive) Save(stage string, output string) (string, error) {
	if err := os.MkdirAll(a.BaseDir, 0o775); err != nil {
		return "", err
	}

	timestamp := time.Now().Format("20060102_150405")
	runID := uuid.New().String()[:8]
	filename := fmt.Sprintf("%s_%s_%s.log", sanitize(stage), timestamp, runID)
	path := filepath.Join(a.BaseDir, filename)

	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// sanitize strips characters that are unsafe in filenames.
func sanitize(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return "stage"
	}
	return string(clean)
}
