package challenge

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	platformerrors "github.com/devready/devready/internal/platform/errors"
)

// Library loads challenges from a directory tree of JSON files, one
// challenge per file, grouped by language subdirectory.
type Library struct {
	dir string
}

// NewLibrary creates a library rooted at dir. The directory may be absent;
// lookups then report no matching challenges.
func NewLibrary(dir string) *Library {
	return &Library{dir: filepath.Clean(dir)}
}

// Random picks a random library challenge matching language and level.
func (l *Library) Random(lang string, level int) (Challenge, error) {
	lang = NormalizeLanguage(lang)
	if lang == "" || !ValidLevel(level) {
		return Challenge{}, platformerrors.New(platformerrors.CodeChallengeInvalid, "invalid language or level")
	}

	files, err := l.listFiles(lang)
	if err != nil {
		return Challenge{}, err
	}

	var candidates []Challenge
	for _, path := range files {
		c, err := readChallengeFile(path)
		if err != nil {
			continue
		}
		if NormalizeLanguage(c.Language) != lang || c.Level != level {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return Challenge{}, platformerrors.WithMetadata(
			platformerrors.CodeChallengeNotFound,
			fmt.Sprintf("no library challenges found for %s level %d", lang, level),
			map[string]string{"language": lang, "level": fmt.Sprintf("%d", level)},
		)
	}

	idx, err := randomIndex(len(candidates))
	if err != nil {
		return Challenge{}, platformerrors.Wrap(platformerrors.CodeUnknown, "pick random challenge", err)
	}
	picked := candidates[idx]
	picked.Source = SourceLibrary
	return picked, nil
}

func (l *Library) listFiles(lang string) ([]string, error) {
	dir := filepath.Join(l.dir, lang)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read challenge dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".json") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

func readChallengeFile(path string) (Challenge, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Challenge{}, err
	}
	var c Challenge
	if err := json.Unmarshal(raw, &c); err != nil {
		return Challenge{}, fmt.Errorf("parse challenge %s: %w", filepath.Base(path), err)
	}
	return c, nil
}

func randomIndex(n int) (int, error) {
	if n <= 1 {
		return 0, nil
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}
