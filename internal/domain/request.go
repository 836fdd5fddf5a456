package domain

import (
	"encoding/json"
	"time"
)

type DocumentKind string

const (
	KindMorning  DocumentKind = "morning"
	KindEvening  DocumentKind = "evening"
	KindMidday   DocumentKind = "midday"
	KindCompline DocumentKind = "compline"
)

// Shape discriminates single-date requests from monthly date-range requests.
type Shape string

const (
	ShapeSingle Shape = "single"
	ShapeRange  Shape = "range"
)

type PageVariant string

const (
	PageLetter     PageVariant = "letter"
	PageRemarkable PageVariant = "remarkable"
)

// DefaultPsalmCycle is used when a range request does not specify a cycle.
const DefaultPsalmCycle = 60

// Request is the canonical parameter set for one document. BypassCache is a
// delivery flag and never participates in cache key derivation.
type Request struct {
	Kind        DocumentKind `json:"kind"`
	Shape       Shape        `json:"shape"`
	Date        string       `json:"date,omitempty"` // YYYY-MM-DD, single shape only
	Year        int          `json:"year,omitempty"`
	Month       int          `json:"month,omitempty"`
	PageVariant PageVariant  `json:"page_variant"`
	PsalmCycle  int          `json:"psalm_cycle,omitempty"` // range shape only
	BypassCache bool         `json:"bypass_cache,omitempty"`
}

// Canonicalize fills every optional field with its default so that an omitted
// option and an explicitly defaulted option derive the same cache key.
func (r Request) Canonicalize(now time.Time) Request {
	if r.PageVariant == "" {
		r.PageVariant = PageLetter
	}
	switch r.Shape {
	case ShapeSingle:
		if r.Date == "" {
			r.Date = now.Format("2006-01-02")
		}
		r.Year = 0
		r.Month = 0
		r.PsalmCycle = 0
	case ShapeRange:
		if r.Year == 0 {
			r.Year = now.Year()
		}
		if r.Month == 0 {
			r.Month = int(now.Month())
		}
		if r.PsalmCycle == 0 {
			r.PsalmCycle = DefaultPsalmCycle
		}
		r.Date = ""
	}
	return r
}

func (k DocumentKind) Valid() bool {
	switch k {
	case KindMorning, KindEvening, KindMidday, KindCompline:
		return true
	default:
		return false
	}
}

func (v PageVariant) Valid() bool {
	return v == PageLetter || v == PageRemarkable
}

// QueueMessage is the transport format for slow-path generation work.
type QueueMessage struct {
	JobID       string    `json:"job_id"`
	CacheKey    string    `json:"cache_key"`
	Request     Request   `json:"request"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}

// EncodeRequest serializes a request for queue transport.
func EncodeRequest(r Request) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeRequest restores a request from queue transport.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	err := json.Unmarshal(data, &r)
	return r, err
}
