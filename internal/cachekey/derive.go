// Package cachekey maps document requests to canonical artifact store keys.
package cachekey

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

// Derive builds the storage key for a request. It is pure and total: every
// optional modifier is resolved to an explicit token, so an omitted option and
// an explicitly defaulted option produce the same key. Single and range shapes
// occupy disjoint sub-namespaces and can never collide even for overlapping
// dates.
//
// Layout: {kind}/{shape}/{date-or-period}/{page_variant}/{modifier-fingerprint}
func Derive(request domain.Request) string {
	variant := request.PageVariant
	if variant == "" {
		variant = domain.PageLetter
	}

	if request.Shape == domain.ShapeRange {
		cycle := request.PsalmCycle
		if cycle == 0 {
			cycle = domain.DefaultPsalmCycle
		}
		period := fmt.Sprintf("%04d-%02d", request.Year, request.Month)
		return strings.Join([]string{
			string(request.Kind),
			string(domain.ShapeRange),
			period,
			string(variant),
			"cycle" + strconv.Itoa(cycle),
		}, "/")
	}

	return strings.Join([]string{
		string(request.Kind),
		string(domain.ShapeSingle),
		request.Date,
		string(variant),
		"default",
	}, "/")
}
