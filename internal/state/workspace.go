package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jorge-barreto/docchain/internal/registry"
	"github.com/jorge-barreto/docchain/internal/repair"
)

// EnsureDir creates the artifacts directory structure.
func EnsureDir(artifactsDir string) error {
	dirs := []string{
		artifactsDir,
		filepath.Join(artifactsDir, "prompts"),
		filepath.Join(artifactsDir, "outputs"),
		filepath.Join(artifactsDir, "logs"),
		filepath.Join(artifactsDir, "feedback"),
		filepath.Join(artifactsDir, "docs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("creating artifacts dir %s: %w", d, err)
		}
	}
	return nil
}

// Reset removes everything a previous run left under artifactsDir.
func Reset(artifactsDir string) error {
	if err := os.RemoveAll(artifactsDir); err != nil {
		return fmt.Errorf("clearing artifacts dir: %w", err)
	}
	return EnsureDir(artifactsDir)
}

// PromptPath returns the path for the rendered prompt of one attempt.
func PromptPath(artifactsDir, stageID string, attempt int) string {
	return filepath.Join(artifactsDir, "prompts", fmt.Sprintf("%s-%d.md", stageID, attempt))
}

// OutputPath returns the path for the raw output of one attempt.
func OutputPath(artifactsDir, stageID string, attempt int) string {
	return filepath.Join(artifactsDir, "outputs", fmt.Sprintf("%s-%d.txt", stageID, attempt))
}

// FeedbackPath returns the path of the latest defect feedback for a stage.
func FeedbackPath(artifactsDir, stageID string) string {
	return filepath.Join(artifactsDir, "feedback", stageID+".md")
}

// LogDir returns the directory for invoker logs.
func LogDir(artifactsDir string) string {
	return filepath.Join(artifactsDir, "logs")
}

// DocPath returns where an accepted artifact is exported.
func DocPath(artifactsDir string, stage registry.Stage) string {
	ext := ".md"
	if stage.Contract.Kind == registry.StrictJSON {
		ext = ".json"
	}
	return filepath.Join(artifactsDir, "docs", stage.ID+ext)
}

// WriteFeedback records the defects of a stage's latest rejected output.
func WriteFeedback(artifactsDir, stageID, content string) error {
	return os.WriteFile(FeedbackPath(artifactsDir, stageID), []byte(content), 0644)
}

// ExportArtifact writes an accepted artifact to docs/.
func ExportArtifact(artifactsDir string, stage registry.Stage, content string) error {
	return writeFileAtomic(DocPath(artifactsDir, stage), []byte(content), 0644)
}

// Journal writes each attempt's prompt and raw output to the workspace, and
// the feedback of rejected attempts.
type Journal struct {
	Dir string
}

func (j Journal) Record(rec repair.Record) error {
	if err := os.WriteFile(PromptPath(j.Dir, rec.Stage, rec.Attempt), []byte(rec.Prompt), 0644); err != nil {
		return err
	}
	out := rec.Output
	if rec.Err != nil {
		out = strings.TrimRight(out, "\n") + "\n\n[invocation error] " + rec.Err.Error() + "\n"
	}
	if err := os.WriteFile(OutputPath(j.Dir, rec.Stage, rec.Attempt), []byte(out), 0644); err != nil {
		return err
	}
	if rec.Result != nil && !rec.Result.Accepted() {
		return WriteFeedback(j.Dir, rec.Stage, rec.Result.Feedback())
	}
	return nil
}
