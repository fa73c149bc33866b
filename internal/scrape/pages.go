package scrape

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MonthKey identifies one archive month of the portal.
type MonthKey struct {
	Year  int
	Month time.Month
}

func (k MonthKey) Before(o MonthKey) bool {
	if k.Year != o.Year {
		return k.Year < o.Year
	}
	return k.Month < o.Month
}

// First returns the first day of the month.
func (k MonthKey) First() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Last returns the last day of the month.
func (k MonthKey) Last() time.Time {
	return k.First().AddDate(0, 1, -1)
}

var monthPageRe = regexp.MustCompile(`(?i)href="(/index\.php/estadisticas-por-tema/agropecuario/sistema-de-informacion-de-precios-sipsa/componente[^"]+)"`)

var yearRe = regexp.MustCompile(`\d{4}`)

// Month names must follow a hyphen so "mayo" never matches inside
// "mayoristas".
var monthPatternRes = func() map[string]*regexp.Regexp {
	res := make(map[string]*regexp.Regexp, len(monthNames))
	for name := range monthNames {
		res[name] = regexp.MustCompile(`-` + name + `[-\s]|` + name + `-de-`)
	}
	return res
}()

// YearMonthFromPageURL recovers which archive month a portal page URL
// covers.
func YearMonthFromPageURL(rawURL string) (MonthKey, bool) {
	lower := strings.ToLower(rawURL)
	for name, month := range monthNames {
		if !monthPatternRes[name].MatchString(lower) {
			continue
		}
		ym := yearRe.FindString(lower)
		if ym == "" {
			return MonthKey{}, false
		}
		year, _ := strconv.Atoi(ym)
		return MonthKey{Year: year, Month: month}, true
	}
	return MonthKey{}, false
}

// MonthPageURLs collects the archive month pages linked from the main
// bulletin page, keyed by the month they cover. A month can appear
// under several URLs (reposted pages get a -1 suffix).
func MonthPageURLs(html, baseURL string) map[MonthKey][]string {
	out := make(map[MonthKey][]string)
	for _, m := range monthPageRe.FindAllStringSubmatch(html, -1) {
		href := m[1]
		if strings.HasSuffix(href, "componente-precios-mayoristas") {
			continue
		}
		key, ok := YearMonthFromPageURL(href)
		if !ok {
			continue
		}
		full := strings.TrimSuffix(baseURL, "/") + href
		if !contains(out[key], full) {
			out[key] = append(out[key], full)
		}
	}
	return out
}

// SortedMonthKeys returns the map's keys oldest first.
func SortedMonthKeys(m map[MonthKey][]string) []MonthKey {
	keys := make([]MonthKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
