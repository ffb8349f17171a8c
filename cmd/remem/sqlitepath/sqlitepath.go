package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

func ResolveSQLitePath(override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("REMEM_SQLITE")); envPath != "" {
		return envPath, nil
	}
	if envPath := strings.TrimSpace(os.Getenv("REMEM_DB")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", errors.New("could not find remem SQLite database; pass --storage-sqlite")
}

func sqliteCandidates() []string {
	candidates := []string{
		"remem.db",
		"remem.sqlite",
		filepath.Join(".remem", "remem.db"),
		filepath.Join(".remem", "remem.sqlite"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append([]string{
			filepath.Join(home, ".remem", "remem.db"),
			filepath.Join(home, ".remem", "remem.sqlite"),
		}, candidates...)
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{
			filepath.Join(xdgHome, "remem", "remem.db"),
			filepath.Join(xdgHome, "remem", "remem.sqlite"),
		}, candidates...)
	}

	return candidates
}
