// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the schema migrations applied at startup.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed *.sql
var embeddedFiles embed.FS

// File is one migration. Version is the numeric NNNN_ prefix of Name.
type File struct {
	Version int
	Name    string
	SQL     string
}

// Ordered returns the embedded migrations sorted by version.
func Ordered() ([]File, error) {
	return load(embeddedFiles)
}

func load(fsys fs.FS) ([]File, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(entries))
	byVersion := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, err := parseVersion(entry.Name())
		if err != nil {
			return nil, err
		}
		if other, ok := byVersion[version]; ok {
			return nil, fmt.Errorf("migrations %s and %s share version %d", other, entry.Name(), version)
		}
		byVersion[version] = entry.Name()

		body, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		files = append(files, File{
			Version: version,
			Name:    entry.Name(),
			SQL:     string(body),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Version < files[j].Version
	})
	return files, nil
}

// parseVersion reads the four digit prefix of names like 0001_chains.sql.
func parseVersion(name string) (int, error) {
	prefix, rest, ok := strings.Cut(name, "_")
	if !ok || len(prefix) != 4 || strings.TrimSuffix(rest, ".sql") == "" {
		return 0, fmt.Errorf("migration %s: name must look like NNNN_description.sql", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("migration %s: invalid version prefix %q", name, prefix)
	}
	return version, nil
}
