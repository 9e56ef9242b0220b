// Package export writes scan results as a CSV table, an optional XLSX workbook,
// and a structured JSON report for the presentation stage.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/naka-gawa/github-contrib/internal/domain"
)

var tableHeader = []string{"username", "name", "commits", "prs_created", "prs_merged", "prs_reviewed", "total"}

// Row is one line of the contributions table.
type Row struct {
	Username string
	Name     string
	domain.ContributionRecord
}

// Rows returns one row per user with a contribution record, highest total first.
func Rows(state *domain.ScanState) []Row {
	logins := state.Logins()
	rows := make([]Row, 0, len(logins))
	for _, login := range logins {
		rows = append(rows, Row{
			Username:           login,
			Name:               state.Profile(login).DisplayName(),
			ContributionRecord: *state.Records[login],
		})
	}
	return rows
}

func (r Row) values() []string {
	return []string{
		r.Username,
		r.Name,
		strconv.Itoa(r.Commits),
		strconv.Itoa(r.PRsCreated),
		strconv.Itoa(r.PRsMerged),
		strconv.Itoa(r.PRsReviewed),
		strconv.Itoa(r.Total),
	}
}

// WriteCSV writes the contributions table.
func WriteCSV(w io.Writer, state *domain.ScanState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tableHeader); err != nil {
		return err
	}
	for _, row := range Rows(state) {
		if err := cw.Write(row.values()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
