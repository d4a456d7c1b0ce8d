// Package export flattens sessions into a CSV table for analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jonathan/letterlab/internal/types"
)

// Separator joins nested keys, e.g. controlProfile_text
const Separator = "_"

// Flatten turns nested maps into a single level map with joined keys.
// Lists are kept as values.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	flattenInto(out, "", m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + Separator + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// Rows converts sessions to flattened rows using their JSON field names
func Rows(sessions []types.Session) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(sessions))
	for i := range sessions {
		raw, err := json.Marshal(&sessions[i])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session %s: %w", sessions[i].ID, err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode session %s: %w", sessions[i].ID, err)
		}
		rows = append(rows, Flatten(doc))
	}
	return rows, nil
}

// Header returns the sorted union of the keys of every row
func Header(rows []map[string]any) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}

// WriteCSV writes rows under their combined header. Missing cells are empty.
func WriteCSV(w io.Writer, rows []map[string]any) error {
	header := Header(rows)
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i, k := range header {
			cell, err := formatCell(row[k])
			if err != nil {
				return fmt.Errorf("failed to format %s: %w", k, err)
			}
			record[i] = cell
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSessions flattens sessions and writes them as CSV
func WriteSessions(w io.Writer, sessions []types.Session) error {
	rows, err := Rows(sessions)
	if err != nil {
		return err
	}
	return WriteCSV(w, rows)
}

func formatCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(val), nil
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
