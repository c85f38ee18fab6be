package google

import (
	"fmt"
	"strings"

	gsheet "google.golang.org/api/sheets/v4"
)

// a1Range quotes title for A1 notation.
func a1Range(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cells)
}

// hasSheet reports whether the spreadsheet already has a tab named title.
func hasSheet(ss *gsheet.Spreadsheet, title string) bool {
	if ss == nil {
		return false
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return true
		}
	}
	return false
}

func addSheetRequest(title string) *gsheet.Request {
	return &gsheet.Request{
		AddSheet: &gsheet.AddSheetRequest{
			Properties: &gsheet.SheetProperties{
				Title: title,
				GridProperties: &gsheet.GridProperties{
					FrozenRowCount: 1,
					ColumnCount:    4,
				},
			},
		},
	}
}
