// Package estimate produces device and asset count estimates for a
// free-text target condition. Estimates are deterministic: the same
// condition over the same fleet always yields the same numbers.
package estimate

import (
	"math"
	"strings"

	"github.com/gobwas/glob"
	"github.com/zeebo/xxh3"

	"fleetjobs/internal/model"
)

const (
	hubToken    = "hub:"
	regionToken = "region:"

	minFraction = 0.05
	fractionMod = 9000
)

type Result struct {
	DeviceCount int      `json:"device_count"`
	AssetCount  int      `json:"asset_count"`
	Hubs        []string `json:"hubs,omitempty"`
}

// Normalize trims, lower-cases and collapses whitespace. Two conditions
// that normalize equally estimate equally.
func Normalize(condition string) string {
	return strings.Join(strings.Fields(strings.ToLower(condition)), " ")
}

// Estimate is pure. The device count lies in [1, totals.Devices], or is
// 0 for an empty fleet. The asset count is 0 when the fleet has no
// assets.
func Estimate(condition string, totals model.FleetTotals) Result {
	norm := Normalize(condition)
	return Result{
		DeviceCount: scaled(xxh3.HashString(norm), totals.Devices, 1),
		AssetCount:  scaled(xxh3.HashString("assets|"+norm), totals.Assets, 0),
	}
}

// ForHubs narrows hubs with the condition's scope tokens and estimates
// against what remains. Result.Hubs lists the hubs the estimate covers.
func ForHubs(condition string, hubs []model.Hub) Result {
	scoped := Scope(condition, hubs)
	r := Estimate(condition, model.TotalsOf(scoped))
	for _, h := range scoped {
		r.Hubs = append(r.Hubs, h.Name)
	}
	return r
}

func scaled(h uint64, total, floor int) int {
	if total <= 0 {
		return 0
	}
	fraction := minFraction + float64(h%fractionMod)/10000
	n := int(math.Round(float64(total) * fraction))
	if n < floor {
		n = floor
	}
	if n > total {
		n = total
	}
	return n
}

// Scope keeps the hubs matched by the condition's hub:<glob> and
// region:<glob> tokens. Patterns of one kind are OR-ed, the two kinds
// are AND-ed. A condition without valid tokens, or whose tokens match
// nothing, scopes to every hub given.
func Scope(condition string, hubs []model.Hub) []model.Hub {
	hubGlobs, regionGlobs := scopeGlobs(condition)
	if len(hubGlobs) == 0 && len(regionGlobs) == 0 {
		return append([]model.Hub(nil), hubs...)
	}

	var out []model.Hub
	for _, h := range hubs {
		if !matchAny(hubGlobs, strings.ToLower(h.Name)) {
			continue
		}
		if !matchAny(regionGlobs, strings.ToLower(h.Region)) {
			continue
		}
		out = append(out, h)
	}
	if len(out) == 0 {
		return append([]model.Hub(nil), hubs...)
	}
	return out
}

func scopeGlobs(condition string) (hubGlobs, regionGlobs []glob.Glob) {
	for _, field := range strings.Fields(strings.ToLower(condition)) {
		var pattern string
		var dst *[]glob.Glob
		switch {
		case strings.HasPrefix(field, hubToken):
			pattern, dst = strings.TrimPrefix(field, hubToken), &hubGlobs
		case strings.HasPrefix(field, regionToken):
			pattern, dst = strings.TrimPrefix(field, regionToken), &regionGlobs
		default:
			continue
		}
		if pattern == "" {
			continue
		}
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		*dst = append(*dst, g)
	}
	return hubGlobs, regionGlobs
}

// matchAny is true for an empty pattern list.
func matchAny(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}
