package core

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GroupSeed is one entry of the administrative groups file.
type GroupSeed struct {
	Title       string `yaml:"title"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
}

type groupSeedFile struct {
	Groups []GroupSeed `yaml:"groups"`
}

// ParseGroupSeeds reads the YAML group definitions. Every entry must carry a
// title and a unique slug; duplicates within the file are rejected.
func ParseGroupSeeds(data []byte) ([]GroupSeed, error) {
	var file groupSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse groups file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Groups))
	for i := range file.Groups {
		g := &file.Groups[i]
		g.Title = strings.TrimSpace(g.Title)
		g.Slug = strings.TrimSpace(g.Slug)
		if g.Title == "" || g.Slug == "" {
			return nil, fmt.Errorf("group entry %d: title and slug are required", i+1)
		}
		if _, dup := seen[g.Slug]; dup {
			return nil, fmt.Errorf("group entry %d: %w", i+1, errDuplicate("slug", g.Slug))
		}
		seen[g.Slug] = struct{}{}
	}
	return file.Groups, nil
}

// BootstrapGroups seeds groups from cfg.GroupsFile. A missing file is not an
// error: the instance simply starts without groups. Seeding is idempotent and
// upserts by slug, so re-running with an edited file updates titles and
// descriptions but never rewrites a slug.
func BootstrapGroups(ctx context.Context, repo GroupRepository, cfg Config) error {
	if cfg.GroupsFile == "" {
		return nil
	}
	data, err := os.ReadFile(cfg.GroupsFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("groups file %s not found, skipping group seed", cfg.GroupsFile)
			return nil
		}
		return err
	}

	seeds, err := ParseGroupSeeds(data)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		if _, err := repo.Upsert(ctx, Group{
			Title:       seed.Title,
			Slug:        seed.Slug,
			Description: seed.Description,
		}); err != nil {
			return fmt.Errorf("failed to seed group %q: %w", seed.Slug, err)
		}
	}
	log.Printf("seeded %d groups from %s", len(seeds), cfg.GroupsFile)
	return nil
}
