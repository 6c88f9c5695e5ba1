package history

import (
	"path/filepath"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/doclatex/doclatex/internal/constants"
	"github.com/doclatex/doclatex/internal/models"
)

// Query selects history records. Zero values match everything.
type Query struct {
	// Search matches the original file name case-insensitively, either as a
	// substring or within a small edit distance of the base name.
	Search string
	Status models.HistoryStatus
	Limit  int
}

// Filter applies q to records, which must already be newest first.
func Filter(records []models.HistoryRecord, q Query) []models.HistoryRecord {
	search := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.HistoryRecord, 0, len(records))
	for _, r := range records {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if search != "" && !matchName(r.OriginalFileName, search) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

func matchName(fileName, search string) bool {
	name := strings.ToLower(fileName)
	if strings.Contains(name, search) {
		return true
	}
	// Short terms would fuzzy-match nearly everything.
	if len([]rune(search)) <= constants.FuzzyMatchMaxDistance {
		return false
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return levenshtein.ComputeDistance(base, search) <= constants.FuzzyMatchMaxDistance
}

// Stats counts records by status.
func Stats(records []models.HistoryRecord) models.HistoryStats {
	s := models.HistoryStats{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case models.HistorySuccess:
			s.Success++
		case models.HistoryFailed:
			s.Failed++
		case models.HistoryProcessing:
			s.Processing++
		}
	}
	return s
}
