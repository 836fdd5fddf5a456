package cachekey

import (
	"testing"
	"time"

	"github.com/mbelshaw/dailyoffice-back/internal/domain"
)

func TestDeriveSingleDateKey(t *testing.T) {
	key := Derive(domain.Request{
		Kind:        domain.KindMorning,
		Shape:       domain.ShapeSingle,
		Date:        "2025-12-25",
		PageVariant: domain.PageLetter,
	})
	if key != "morning/single/2025-12-25/letter/default" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestDeriveRangeKey(t *testing.T) {
	key := Derive(domain.Request{
		Kind:       domain.KindEvening,
		Shape:      domain.ShapeRange,
		Year:       2025,
		Month:      3,
		PsalmCycle: 30,
	})
	if key != "evening/range/2025-03/letter/cycle30" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	request := domain.Request{
		Kind:        domain.KindCompline,
		Shape:       domain.ShapeRange,
		Year:        2026,
		Month:       11,
		PageVariant: domain.PageRemarkable,
		PsalmCycle:  60,
	}
	first := Derive(request)
	for i := 0; i < 100; i++ {
		if got := Derive(request); got != first {
			t.Fatalf("derivation not stable: %q vs %q", got, first)
		}
	}
}

func TestDeriveImplicitAndExplicitDefaultsAgree(t *testing.T) {
	implicit := domain.Request{
		Kind:  domain.KindMorning,
		Shape: domain.ShapeRange,
		Year:  2025,
		Month: 12,
	}
	explicit := implicit
	explicit.PageVariant = domain.PageLetter
	explicit.PsalmCycle = domain.DefaultPsalmCycle

	if Derive(implicit) != Derive(explicit) {
		t.Fatalf("defaulted keys differ: %q vs %q", Derive(implicit), Derive(explicit))
	}
	if got := Derive(implicit); got != "morning/range/2025-12/letter/cycle60" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestDeriveCanonicalizedRequestsAgree(t *testing.T) {
	now := time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

	bare := domain.Request{Kind: domain.KindMidday, Shape: domain.ShapeSingle}.Canonicalize(now)
	spelled := domain.Request{
		Kind:        domain.KindMidday,
		Shape:       domain.ShapeSingle,
		Date:        "2025-06-15",
		PageVariant: domain.PageLetter,
	}.Canonicalize(now)

	if Derive(bare) != Derive(spelled) {
		t.Fatalf("canonicalized keys differ: %q vs %q", Derive(bare), Derive(spelled))
	}
}

func TestDeriveDistinguishesEveryParameter(t *testing.T) {
	base := domain.Request{
		Kind:        domain.KindMorning,
		Shape:       domain.ShapeRange,
		Year:        2025,
		Month:       12,
		PageVariant: domain.PageLetter,
		PsalmCycle:  60,
	}

	variants := map[string]domain.Request{
		"kind":        {Kind: domain.KindEvening, Shape: base.Shape, Year: base.Year, Month: base.Month, PageVariant: base.PageVariant, PsalmCycle: base.PsalmCycle},
		"year":        {Kind: base.Kind, Shape: base.Shape, Year: 2026, Month: base.Month, PageVariant: base.PageVariant, PsalmCycle: base.PsalmCycle},
		"month":       {Kind: base.Kind, Shape: base.Shape, Year: base.Year, Month: 11, PageVariant: base.PageVariant, PsalmCycle: base.PsalmCycle},
		"page":        {Kind: base.Kind, Shape: base.Shape, Year: base.Year, Month: base.Month, PageVariant: domain.PageRemarkable, PsalmCycle: base.PsalmCycle},
		"psalm_cycle": {Kind: base.Kind, Shape: base.Shape, Year: base.Year, Month: base.Month, PageVariant: base.PageVariant, PsalmCycle: 30},
	}

	baseKey := Derive(base)
	seen := map[string]string{"base": baseKey}
	for name, request := range variants {
		key := Derive(request)
		if key == baseKey {
			t.Fatalf("changing %s did not change the key %q", name, key)
		}
		if previous, dup := seen[key]; dup {
			t.Fatalf("keys collide between %s and %s: %q", name, previous, key)
		}
		seen[key] = name
	}
}

func TestDeriveShapesNeverCollide(t *testing.T) {
	single := Derive(domain.Request{
		Kind:  domain.KindMorning,
		Shape: domain.ShapeSingle,
		Date:  "2025-12-01",
	})
	monthly := Derive(domain.Request{
		Kind:  domain.KindMorning,
		Shape: domain.ShapeRange,
		Year:  2025,
		Month: 12,
	})
	if single == monthly {
		t.Fatalf("single and range keys collide: %q", single)
	}
}

func TestDeriveIgnoresBypassFlag(t *testing.T) {
	plain := domain.Request{Kind: domain.KindMorning, Shape: domain.ShapeSingle, Date: "2025-12-25"}
	bypass := plain
	bypass.BypassCache = true

	if Derive(plain) != Derive(bypass) {
		t.Fatal("bypass_cache must not participate in key derivation")
	}
}
