// Package dfsutil holds the cross-process plumbing (config loading,
// logging, the admin API) shared by the router, shard, and client mains,
// kept out of package dfs so dfs stays a pure protocol/engine library.
package dfsutil

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kestrelfs/dfs/dfs"
)

// LoadConfig reads a YAML file at path into dst and validates it against
// dst's `validate` struct tags. dst must be a pointer to a dfs.RouterConfig,
// dfs.ShardConfig, or dfs.ClientConfig. A blank Home/LocalHome field is
// defaulted from the HOME environment variable, the only environment
// variable this system consumes.
func LoadConfig(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	applyHomeDefault(dst)
	if err := validator.New().Struct(dst); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func applyHomeDefault(dst any) {
	switch cfg := dst.(type) {
	case *dfs.RouterConfig:
		if cfg.Home == "" {
			cfg.Home = os.Getenv("HOME")
		}
	case *dfs.ShardConfig:
		if cfg.Home == "" {
			cfg.Home = os.Getenv("HOME")
		}
	case *dfs.ClientConfig:
		if cfg.LocalHome == "" {
			cfg.LocalHome = os.Getenv("HOME")
		}
	}
}
