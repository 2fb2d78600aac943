package repository

import (
	"errors"

	"gorm.io/gorm"
)

const defaultPageSize = 50

// pageBounds normalizes paging input and returns limit and offset.
func pageBounds(limit, page int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}

// IsNotFound reports whether err is GORM's record-not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
