package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmined/syncmirror/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

const (
	DefaultIgnoreFileName = ".syncignore"
	LockFileName          = ".sync.lock"
)

var defaultIgnoreLines = []string{
	DefaultIgnoreFileName,
	LockFileName,
	utils.TempFilePattern,
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	"desktop.ini",
	// editors
	"*.swp",
	"*~",
}

// SyncIgnoreList filters paths out of both push and pull. The metadata
// side-file and the run lock are always ignored.
type SyncIgnoreList struct {
	ignoreFile string
	extra      []string
	ignore     *gitignore.GitIgnore
}

// NewSyncIgnoreList reads rules from ignoreFile (if it exists) on Load. extra
// lines are appended to the built-in defaults.
func NewSyncIgnoreList(ignoreFile string, extra ...string) *SyncIgnoreList {
	return &SyncIgnoreList{ignoreFile: ignoreFile, extra: extra}
}

func (s *SyncIgnoreList) Load() {
	lines := append([]string{}, defaultIgnoreLines...)
	lines = append(lines, s.extra...)

	if s.ignoreFile != "" && utils.FileExists(s.ignoreFile) {
		rules, err := readIgnoreFile(s.ignoreFile)
		if err != nil {
			slog.Warn("ignore file unreadable", "path", s.ignoreFile, "error", err)
		} else {
			slog.Info("ignore file loaded", "path", s.ignoreFile, "rules", len(rules))
			lines = append(lines, rules...)
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(lines...)
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var rules []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, line)
	}
	return rules, scanner.Err()
}

// ShouldIgnore matches a slash separated path relative to the local root.
// Directories are matched with a trailing slash so rules like `cache/` work.
func (s *SyncIgnoreList) ShouldIgnore(relPath string, isDir bool) bool {
	if s.ignore == nil {
		s.Load()
	}
	if isDir {
		relPath += "/"
	}
	return s.ignore.MatchesPath(filepath.ToSlash(relPath))
}
