package pagination

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

// DefaultLimit is the default number of items per page
const DefaultLimit = 20

// MaxLimit is the maximum number of items per page
const MaxLimit = 100

// BitrixPageSize is the fixed page size of Bitrix24 list methods
const BitrixPageSize = 50

// Window is a raw start/limit slice of a Bitrix24 list
type Window struct {
	Start int `json:"start"`
	Limit int `json:"limit"`
}

// GetWindow extracts start/limit from the request
func GetWindow(c *fiber.Ctx) Window {
	start, _ := strconv.Atoi(c.Query("start", "0"))
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(BitrixPageSize)))

	if start < 0 {
		start = 0
	}
	if limit < 1 || limit > BitrixPageSize {
		limit = BitrixPageSize
	}

	return Window{Start: start, Limit: limit}
}

// Start converts a 1-based page into a Bitrix24 start offset
func Start(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}

// TotalPages returns ceil(total / limit)
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}
	return totalPages
}
