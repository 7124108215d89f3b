package swarmconfig

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// loadDotEnv loads a .env file ahead of viper's environment binding, using
// the same executable-dir-walk-up-then-cwd search order as the teacher's
// internal/config.LoadEnv. Silent if nothing is found: the process falls
// back to whatever is already in the OS environment.
func loadDotEnv(log *zap.SugaredLogger) {
	for _, p := range resolveEnvCandidates() {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				log.Warnf("swarmconfig: failed to load .env from %s: %v", p, err)
			} else {
				log.Infof("swarmconfig: loaded .env from %s", p)
			}
			return
		}
	}
}

func resolveEnvCandidates() []string {
	var candidates []string
	seen := map[string]bool{}
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			candidates = append(candidates, p)
		}
	}

	if exe, err := os.Executable(); err == nil {
		if real, err := filepath.EvalSymlinks(exe); err == nil {
			exe = real
		}
		dir := filepath.Dir(exe)
		for i := 0; i <= 3; i++ {
			add(filepath.Join(dir, ".env"))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		add(filepath.Join(cwd, ".env"))
	}
	return candidates
}
