package schema

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

func (s *SchemaSuite) TestWatchDirReloadsChangedTemplates() {
	dir := s.T().TempDir()
	write := func(name string, body string) {
		s.Require().NoError(os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("intake.yaml", "name: Intake\nfields:\n  - name: age\n    type: number\n")

	store, err := LoadDir(context.Background(), dir)
	s.Require().NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done, err := WatchDir(ctx, dir, store)
	s.Require().NoError(err)

	write("survey.json", `{"id":"survey","name":"Survey","fields":[{"name":"score","type":"number"}]}`)
	s.Eventually(func() bool {
		return len(store.IDs()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	write("broken.yaml", "fields: [")
	time.Sleep(2 * reloadDebounce)
	s.Equal([]string{"intake", "survey"}, store.IDs())

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.Fail("watcher did not stop")
	}
}

func (s *SchemaSuite) TestWatchDirMissingDirectory() {
	_, err := WatchDir(context.Background(), filepath.Join(s.T().TempDir(), "missing"), NewMemoryStore())
	s.Require().Error(err)
}

func (s *SchemaSuite) TestIsTemplateFile() {
	s.True(isTemplateFile("a.YAML"))
	s.True(isTemplateFile("dir/b.json"))
	s.False(isTemplateFile("notes.md"))
}
