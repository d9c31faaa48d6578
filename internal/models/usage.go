package models

import "github.com/dustin/go-humanize"

// Usage describes how much of the per-session storage cap is consumed.
// Limit is zero when no quota is enforced.
type Usage struct {
	Used       int64   `json:"used"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
	UsedHuman  string  `json:"used_human"`
	LimitHuman string  `json:"limit_human"`
}

// NewUsage computes usage stats. The percentage is rounded to one decimal
// and capped at 100.
func NewUsage(used, limit int64) Usage {
	u := Usage{
		Used:      used,
		Limit:     limit,
		UsedHuman: humanize.IBytes(uint64(max(used, 0))),
	}
	if limit <= 0 {
		return u
	}
	u.LimitHuman = humanize.IBytes(uint64(limit))
	u.Remaining = max(limit-used, 0)
	pct := float64(used) / float64(limit) * 100
	pct = float64(int64(pct*10+0.5)) / 10
	u.Percentage = min(pct, 100)
	return u
}
