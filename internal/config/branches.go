package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"invusync/backend/internal/domain"
)

// DefaultBranches is used when BRANCHES is unset.
const DefaultBranches = "sf,museo,cangrejo,costa,marbella"

const tokenEnvPrefix = "INVU_TOKEN_"

// ParseBranches reads a comma list of key[:sucursal_id]. The sucursal id
// defaults to the key. Duplicate keys keep the first entry.
func ParseBranches(raw string) []domain.Branch {
	out := make([]domain.Branch, 0, 8)
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, id, _ := strings.Cut(part, ":")
		b := completeBranch(domain.Branch{Key: key, SucursalID: id})
		if b.Key == "" || seen[b.Key] {
			continue
		}
		seen[b.Key] = true
		out = append(out, b)
	}
	return out
}

type branchesFile struct {
	Branches []domain.Branch `yaml:"branches"`
}

// LoadBranchesFile reads a YAML document of the form
//
//	branches:
//	  - key: sf
//	    sucursal_id: "1"
//	    token_env: INVU_TOKEN_SF
func LoadBranchesFile(path string) ([]domain.Branch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read branches file: %w", err)
	}

	var doc branchesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse branches file %s: %w", path, err)
	}

	out := make([]domain.Branch, 0, len(doc.Branches))
	seen := make(map[string]bool)
	for i, b := range doc.Branches {
		b = completeBranch(b)
		if b.Key == "" {
			return nil, fmt.Errorf("branches file %s: entry %d has no key", path, i)
		}
		if seen[b.Key] {
			return nil, fmt.Errorf("branches file %s: duplicate key %q", path, b.Key)
		}
		seen[b.Key] = true
		out = append(out, b)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("branches file %s: no branches", path)
	}
	return out, nil
}

func completeBranch(b domain.Branch) domain.Branch {
	b.Key = strings.ToLower(strings.TrimSpace(b.Key))
	b.SucursalID = strings.TrimSpace(b.SucursalID)
	b.TokenEnv = strings.TrimSpace(b.TokenEnv)
	if b.SucursalID == "" {
		b.SucursalID = b.Key
	}
	if b.TokenEnv == "" && b.Key != "" {
		b.TokenEnv = TokenEnvFor(b.Key)
	}
	return b
}

// TokenEnvFor is the default credential variable for a branch key.
func TokenEnvFor(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(key))
	return tokenEnvPrefix + name
}

// EnvTokens resolves branch credentials from the process environment at use
// time, so rotated tokens apply without a restart of the config layer.
type EnvTokens struct{}

func (EnvTokens) Token(b domain.Branch) string {
	env := b.TokenEnv
	if env == "" {
		env = TokenEnvFor(b.Key)
	}
	return strings.TrimSpace(os.Getenv(env))
}
