package parse

import "time"

// DocMeta is the city, market, and date context for one document.
// Empty or nil fields mean the source could not say.
type DocMeta struct {
	City   string
	Market string
	Date   *time.Time
}

// MetaSource derives document context from one place: an archive
// member filename, a parsed document header, or the download entry
// metadata.
type MetaSource func() DocMeta

// InferMeta tries sources in priority order. City and market travel as
// a pair, taken together from the first source naming a city; the date
// fills independently from the first source carrying one.
func InferMeta(sources ...MetaSource) DocMeta {
	var out DocMeta
	for _, src := range sources {
		m := src()
		if out.City == "" && m.City != "" {
			out.City, out.Market = m.City, m.Market
		}
		if out.Date == nil && m.Date != nil {
			out.Date = m.Date
		}
		if out.City != "" && out.Date != nil {
			break
		}
	}
	return out
}

// FilenameMeta reads "City, Market-DD-MM-YYYY.pdf" archive member names.
func FilenameMeta(name string) MetaSource {
	return func() DocMeta {
		city, market, date := ParseMemberFilename(name)
		return DocMeta{City: city, Market: market, Date: date}
	}
}

// StaticMeta wraps already-known values.
func StaticMeta(city, market string, date *time.Time) MetaSource {
	return func() DocMeta { return DocMeta{City: city, Market: market, Date: date} }
}
