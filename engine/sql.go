package engine

import (
	"fmt"
	"path/filepath"
	"strings"

	"floe/manifest"
	"floe/scan"
)

// quoteIdent quotes a DuckDB identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteString quotes a DuckDB string literal.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// TaskQuery builds the SQL for one scan task: read the data file, drop the
// rows its position delete files name, project the requested columns. Row
// positions come from a window over the file's natural order. Equality
// deletes have a different column shape and are not yet executable here.
func TaskQuery(task scan.Task, root string) (string, error) {
	cols := make([]string, 0, len(task.Projection))
	for _, f := range task.Projection {
		cols = append(cols, quoteIdent(f.Name))
	}
	projection := strings.Join(cols, ", ")
	if projection == "" {
		projection = "*"
	}

	dataPath := quoteString(filepath.Join(root, task.File.FilePath))
	if len(task.Deletes) == 0 {
		return fmt.Sprintf("SELECT %s FROM read_parquet(%s)", projection, dataPath), nil
	}

	deletePaths := make([]string, 0, len(task.Deletes))
	for _, d := range task.Deletes {
		if d.Content != manifest.ContentPositionDeletes {
			return "", fmt.Errorf("data file %s has equality delete %s, which this engine cannot apply",
				task.File.FilePath, d.FilePath)
		}
		deletePaths = append(deletePaths, quoteString(filepath.Join(root, d.FilePath)))
	}

	return fmt.Sprintf(
		"SELECT %s FROM (SELECT *, (row_number() OVER ()) - 1 AS floe_pos FROM read_parquet(%s)) d "+
			"WHERE NOT EXISTS (SELECT 1 FROM read_parquet([%s]) x "+
			"WHERE x.file_path = %s AND x.pos = d.floe_pos)",
		projection, dataPath, strings.Join(deletePaths, ", "), quoteString(task.File.FilePath),
	), nil
}

// ScanQuery combines a plan's tasks into one statement. An empty plan
// still yields a valid query returning no rows.
func ScanQuery(tasks []scan.Task, root string) (string, error) {
	if len(tasks) == 0 {
		return "SELECT NULL WHERE FALSE", nil
	}
	parts := make([]string, len(tasks))
	for i, task := range tasks {
		q, err := TaskQuery(task, root)
		if err != nil {
			return "", err
		}
		parts[i] = q
	}
	return strings.Join(parts, " UNION ALL "), nil
}

// viewSQL registers a table's current plan under a stable name.
func viewSQL(name string, tasks []scan.Task, root string) (string, error) {
	q, err := ScanQuery(tasks, root)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", quoteIdent(name), q), nil
}
