package common

import (
	"net/http"
	"strconv"
)

// Page describes one slice of a listing, read from ?page= and ?limit=.
type Page struct {
	Number     int `json:"page"`
	Limit      int `json:"limit"`
	TotalItems int `json:"total_items"`
	TotalPages int `json:"total_pages"`
}

// PageFromRequest reads the requested page, falling back to page 1 and
// defaultLimit and capping the limit at maxLimit when it is positive.
func PageFromRequest(r *http.Request, defaultLimit, maxLimit int) Page {
	q := r.URL.Query()
	p := Page{Number: positiveOr(q.Get("page"), 1), Limit: positiveOr(q.Get("limit"), defaultLimit)}
	if maxLimit > 0 && p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Offset is the number of rows to skip.
func (p Page) Offset() int {
	if p.Number <= 1 || p.Limit <= 0 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// WithTotal fills in the totals once the listing has been counted.
func (p Page) WithTotal(total int) Page {
	p.TotalItems = total
	p.TotalPages = 0
	if p.Limit > 0 {
		p.TotalPages = (total + p.Limit - 1) / p.Limit
	}
	return p
}

func positiveOr(raw string, def int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
