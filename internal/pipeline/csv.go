package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shpitdev/community-landscape/internal/model"
)

// accountColumns is the prefix of columns describing the followed account itself.
var accountColumns = columns[:14]

// WriteCSV writes rows as a CSV with the stable Header() ordering.
func WriteCSV(w io.Writer, rows []Row) error {
	return writeColumns(w, columns, rows)
}

// ReadCSV reads rows from a CSV using the stable Header() contract.
//
// Extra columns are ignored. Required columns from Header() must exist.
func ReadCSV(r io.Reader) ([]Row, error) {
	return readColumns(r, columns)
}

// WriteAccountsCSV writes a follow-list using the account columns of Header().
func WriteAccountsCSV(w io.Writer, accounts []model.FollowedAccount) error {
	rows := make([]Row, len(accounts))
	for i, a := range accounts {
		rows[i] = PlaceholderRow(a)
	}
	return writeColumns(w, accountColumns, rows)
}

// ReadAccountsCSV is the inverse of WriteAccountsCSV.
func ReadAccountsCSV(r io.Reader) ([]model.FollowedAccount, error) {
	rows, err := readColumns(r, accountColumns)
	if err != nil {
		return nil, err
	}
	out := make([]model.FollowedAccount, len(rows))
	for i, row := range rows {
		out[i] = row.Account()
	}
	return out, nil
}

// Account extracts the followed-account part of the row.
func (r Row) Account() model.FollowedAccount {
	return model.FollowedAccount{
		ID:              r.ID,
		Username:        r.Username,
		Name:            r.Name,
		Description:     r.Description,
		Location:        r.Location,
		URL:             r.URL,
		ProfileImageURL: r.ProfileImageURL,
		Verified:        r.Verified,
		Protected:       r.Protected,
		CreatedAt:       r.CreatedAt,
		FollowersCount:  r.FollowersCount,
		FollowingCount:  r.FollowingCount,
		TweetCount:      r.TweetCount,
		ListedCount:     r.ListedCount,
	}
}

func writeColumns(w io.Writer, cols []column, rows []Row) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.field.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for _, r := range rows {
		for i, c := range cols {
			rec[i] = c.get(r)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readColumns(r io.Reader, cols []column) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, c := range cols {
		if _, ok := index[c.field.Name]; !ok {
			return nil, fmt.Errorf("missing required column %q", c.field.Name)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}

		get := func(col string) (string, bool) {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return "", ok
			}
			return rec[i], true
		}
		row, err := fromValues(cols, get)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
}
