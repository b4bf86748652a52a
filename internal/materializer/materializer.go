package materializer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
)

// Materializer turns an Issue's log_artifacts into a populated Workspace
// tree (§4.C).
type Materializer struct {
	WorkspaceRoot string
	Resolver      FetchResolver
	Decryptor     Decryptor
	TotalCeiling  int64
}

func New(workspaceRoot string, resolver FetchResolver, decryptor Decryptor, totalCeiling int64) *Materializer {
	return &Materializer{
		WorkspaceRoot: workspaceRoot,
		Resolver:      resolver,
		Decryptor:     decryptor,
		TotalCeiling:  totalCeiling,
	}
}

// Materialize builds {workspace}/logs (and, advisorially, {workspace}/code
// when needsCode is true) from issue.LogArtifacts. Artifacts within one
// Task are processed sequentially — resource isolation is per Task, not per
// artifact (§4.C Concurrency).
func (m *Materializer) Materialize(ctx context.Context, taskID string, issue *models.Issue, needsCode bool) (string, error) {
	wsDir := filepath.Join(m.WorkspaceRoot, taskID)
	logsDir := filepath.Join(wsDir, "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", errkind.Wrap(errkind.KindMaterializeFailed, "create workspace", err)
	}

	budget := newExtractionBudget(m.TotalCeiling)

	for _, artifact := range issue.LogArtifacts {
		if err := ctx.Err(); err != nil {
			return wsDir, errkind.Wrap(errkind.KindCancelled, "materialize cancelled", err)
		}

		raw, err := m.Resolver.Resolve(ctx, artifact)
		if err != nil {
			return wsDir, errkind.Wrap(errkind.KindMaterializeFailed, fmt.Sprintf("resolve artifact %s", artifact.Name), err)
		}

		payload := raw
		if strings.HasSuffix(artifact.Name, EncryptedSuffix) {
			payload, err = m.Decryptor.Decrypt(ctx, artifact.Name, raw)
			if err != nil {
				return wsDir, errkind.Wrap(errkind.KindDecryptFailed, fmt.Sprintf("decrypt artifact %s", artifact.Name), err)
			}
		}

		if err := ExtractInto(payload, logsDir, budget); err != nil {
			return wsDir, errkind.Wrap(errkind.KindExtractFailed, fmt.Sprintf("extract artifact %s", artifact.Name), err)
		}
	}

	if needsCode {
		// Advisory per §9 Open Question: only an empty code directory is
		// created; no code tree is checked out into it. Analysis proceeds
		// without one, and its absence is not recorded on the Task or Result.
		codeDir := filepath.Join(wsDir, "code")
		if err := os.MkdirAll(codeDir, 0o755); err != nil {
			_ = err // best-effort; a failure here is ignored, not fatal
		}
	}

	return wsDir, nil
}

// Cleanup removes a completed Task's workspace. If keepSnapshot is true the
// logs tree and transcript are first archived into snapshot.tar for
// post-mortem retention (§4.I, Testable Property 7).
func (m *Materializer) Cleanup(taskID string, keepSnapshot bool) error {
	wsDir := filepath.Join(m.WorkspaceRoot, taskID)
	if keepSnapshot {
		if err := snapshotWorkspace(wsDir); err != nil {
			return fmt.Errorf("snapshot workspace %s: %w", taskID, err)
		}
		return nil
	}
	return os.RemoveAll(wsDir)
}
