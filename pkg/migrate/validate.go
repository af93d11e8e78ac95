package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

const (
	annotationUp    = "-- +goose Up"
	annotationDown  = "-- +goose Down"
	annotationBegin = "-- +goose StatementBegin"
	annotationEnd   = "-- +goose StatementEnd"
)

// ValidateDir checks every .sql file in dir and reports all problems at
// once: filename format, duplicate versions or names, missing Up/Down
// sections and unbalanced statement blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	names := map[string]string{}
	var problems error

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		file := e.Name()

		m := sqlFileRe.FindStringSubmatch(file)
		if m == nil {
			problems = multierr.Append(problems, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", file))
			continue
		}
		version, name := m[1], m[2]
		if prev, ok := versions[version]; ok {
			problems = multierr.Append(problems, fmt.Errorf("duplicate migration version %s in %q and %q", version, prev, file))
		}
		versions[version] = file
		if prev, ok := names[name]; ok {
			problems = multierr.Append(problems, fmt.Errorf("migration name %q used by %q and %q", name, prev, file))
		}
		names[name] = file

		body, err := os.ReadFile(filepath.Join(dir, file))
		if err != nil {
			problems = multierr.Append(problems, fmt.Errorf("read file %q: %w", file, err))
			continue
		}
		problems = multierr.Append(problems, checkAnnotations(file, string(body)))
	}

	return problems
}

func checkAnnotations(file, body string) error {
	var problems error
	up := strings.Index(body, annotationUp)
	down := strings.Index(body, annotationDown)
	switch {
	case up < 0:
		problems = multierr.Append(problems, fmt.Errorf("migration %q missing %q", file, annotationUp))
	case down < 0:
		problems = multierr.Append(problems, fmt.Errorf("migration %q missing %q", file, annotationDown))
	case down < up:
		problems = multierr.Append(problems, fmt.Errorf("migration %q has its Down section before Up", file))
	}

	depth := 0
	for _, line := range strings.Split(body, "\n") {
		switch strings.TrimSpace(line) {
		case annotationBegin:
			depth++
			if depth > 1 {
				return multierr.Append(problems, fmt.Errorf("migration %q nests StatementBegin", file))
			}
		case annotationEnd:
			depth--
			if depth < 0 {
				return multierr.Append(problems, fmt.Errorf("migration %q has StatementEnd without StatementBegin", file))
			}
		}
	}
	if depth != 0 {
		problems = multierr.Append(problems, fmt.Errorf("migration %q leaves a StatementBegin open", file))
	}
	return problems
}
