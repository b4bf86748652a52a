package materializer

import (
	"archive/tar"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotWorkspace tars logs/ and transcript.txt into snapshot.tar at the
// workspace root, then removes everything else, leaving only the snapshot
// and scheduling it for deletion by retention (§4.I, Testable Property 7).
func snapshotWorkspace(wsDir string) error {
	snapshotPath := filepath.Join(wsDir, "snapshot.tar")
	f, err := os.Create(snapshotPath)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	defer tw.Close()

	for _, rel := range []string{"logs", "transcript.txt", "prompt.txt"} {
		full := filepath.Join(wsDir, rel)
		if _, err := os.Stat(full); os.IsNotExist(err) {
			continue
		}
		if err := addToTar(tw, wsDir, full); err != nil {
			return err
		}
	}

	entries, err := os.ReadDir(wsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name() == "snapshot.tar" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(wsDir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func addToTar(tw *tar.Writer, root, path string) error {
	return filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
}

// Sweeper periodically deletes workspaces whose retention window has
// expired (supplemented feature, grounded on the teacher's cleanup sweeper
// pattern: a ticking background goroutine).
type Sweeper struct {
	WorkspaceRoot string
	RetainFor     time.Duration
}

func NewSweeper(workspaceRoot string, retainFor time.Duration) *Sweeper {
	return &Sweeper{WorkspaceRoot: workspaceRoot, RetainFor: retainFor}
}

// Run blocks, sweeping on every tick until done is closed.
func (s *Sweeper) Run(done <-chan struct{}, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() error {
	entries, err := os.ReadDir(s.WorkspaceRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	cutoff := time.Now().Add(-s.RetainFor)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(s.WorkspaceRoot, e.Name()))
		}
	}
	return nil
}
