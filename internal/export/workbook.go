package export

import (
	"fmt"
	"sort"

	"github.com/naka-gawa/github-contrib/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	contributorsSheet = "Contributors"
	repositoriesSheet = "Repositories"
)

// WriteWorkbook saves an XLSX file with a Contributors sheet (the same rows as the
// CSV table) and a Repositories sheet with one row per user and repository.
func WriteWorkbook(path string, state *domain.ScanState) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", contributorsSheet); err != nil {
		return err
	}
	if err := setRow(f, contributorsSheet, 1, toCells(tableHeader)); err != nil {
		return err
	}
	for i, row := range Rows(state) {
		cells := []interface{}{row.Username, row.Name, row.Commits, row.PRsCreated, row.PRsMerged, row.PRsReviewed, row.Total}
		if err := setRow(f, contributorsSheet, i+2, cells); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(repositoriesSheet); err != nil {
		return err
	}
	header := []interface{}{"username", "repository", "commits", "prs_created", "prs_merged", "prs_reviewed", "total"}
	if err := setRow(f, repositoriesSheet, 1, header); err != nil {
		return err
	}
	line := 2
	for _, login := range state.Logins() {
		repos := make([]string, 0, len(state.Repos[login]))
		for repo := range state.Repos[login] {
			repos = append(repos, repo)
		}
		sort.Strings(repos)
		for _, repo := range repos {
			rec := state.Repos[login][repo]
			cells := []interface{}{login, repo, rec.Commits, rec.PRsCreated, rec.PRsMerged, rec.PRsReviewed, rec.Total}
			if err := setRow(f, repositoriesSheet, line, cells); err != nil {
				return err
			}
			line++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, line int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func toCells(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
