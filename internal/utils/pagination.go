package utils

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	maxPageSize = 100
	// maxPage keeps the page offset from overflowing int.
	maxPage = math.MaxInt / maxPageSize
)

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// ParsePagination reads page and limit query params with sane defaults.
func ParsePagination(c *fiber.Ctx) Pagination {
	page := parseInt(c.Query("page", "1"), 1)
	limit := parseInt(c.Query("limit", "20"), 20)
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}

	return Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Window returns the bounds of the current page within n results.
func (p Pagination) Window(n int) (start, end int) {
	start = max(0, min(p.Offset, n))
	end = min(start+p.Limit, n)
	return start, end
}

// Meta is the pagination block returned next to paged data.
func (p Pagination) Meta(total int) fiber.Map {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return fiber.Map{
		"page":        p.Page,
		"limit":       p.Limit,
		"total":       total,
		"total_pages": pages,
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
