package page

import (
	util "github.com/bietkhonhungvandi212/array-db/internal/utils"
)

// CreateTestPage builds a loaded, clean page whose leading slots hold values.
func CreateTestPage(pageID util.PageID, values ...int64) *Page {
	p := New(pageID)
	if len(values) > util.SlotsPerPage {
		values = values[:util.SlotsPerPage] // Truncate to fit
	}
	copy(p.values[:], values)
	return p
}

// CreateTestImage returns the serialized image of CreateTestPage(0, values...).
func CreateTestImage(values ...int64) []byte {
	buf, err := CreateTestPage(0, values...).Serialize()
	if err != nil {
		panic(err)
	}
	return buf
}
