package arrivals

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/sofiatransit/arrivals/gtfs"
	"github.com/sofiatransit/arrivals/realtime"
)

const alertFallbackText = "Няма подробно описание."

// The operator's free-text alerts reference lines as, for example,
// "тролейбусни линии № 1, 2 и 4". The mode word is declined, so only its
// stem is matched. "бусни" without the "авто" prefix still reads as bus.
var lineMentionPattern = regexp.MustCompile(
	`(?i)(трамвайн\p{L}*|тролейбусн\p{L}*|(?:авто)?бусн\p{L}*)\s+(?:линия|линии)\s+№\s*([\d\s,и]+)`)

var lineListSeparator = regexp.MustCompile(`[\s,и]+`)

// Stems are checked in order; the trolleybus stem must win before the
// bare bus stem, which it contains.
var modeStems = []struct {
	stem      string
	routeType string
}{
	{"трамвайн", gtfs.RouteTypeTram},
	{"тролейбусн", gtfs.RouteTypeTrolley},
	{"автобусн", gtfs.RouteTypeBus},
	{"бусн", gtfs.RouteTypeBus},
}

// LineMention is one "<mode> линии № ..." occurrence in an alert text.
type LineMention struct {
	RouteType string
	Lines     []string
}

// ExtractLineMentions scans free text for line references and returns the
// mentioned (mode, line numbers) pairs in order of appearance.
func ExtractLineMentions(text string) []LineMention {
	var out []LineMention
	for _, m := range lineMentionPattern.FindAllStringSubmatch(text, -1) {
		modeWord := strings.ToLower(m[1])
		routeType := ""
		for _, s := range modeStems {
			if strings.HasPrefix(modeWord, s.stem) {
				routeType = s.routeType
				break
			}
		}
		if routeType == "" {
			continue
		}
		var lines []string
		seen := map[string]struct{}{}
		for _, name := range lineListSeparator.Split(m[2], -1) {
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			lines = append(lines, name)
		}
		if len(lines) > 0 {
			out = append(out, LineMention{RouteType: routeType, Lines: lines})
		}
	}
	return out
}

// CorrelateAlerts maps every alert in the snapshot to the routes it
// affects, keyed "{route_short_name}-{route_type}". Routes are matched
// through the alert's structured entity references and through free-text
// line mentions. Rebuilt fresh on every call; alert volume is small and
// the snapshot only changes once per refresh window.
func CorrelateAlerts(snap *realtime.Snapshot, idx *gtfs.ScheduleIndex) map[string][]string {
	out := map[string][]string{}
	if snap == nil || snap.Alerts == nil {
		return out
	}

	routesByShortName := map[string][]*gtfs.Route{}
	for _, r := range idx.AllRoutes() {
		if r.ShortName != "" {
			routesByShortName[r.ShortName] = append(routesByShortName[r.ShortName], r)
		}
	}

	add := func(route *gtfs.Route, text string) {
		if route == nil || route.ShortName == "" || route.Type == "" {
			return
		}
		key := route.ShortName + "-" + route.Type
		for _, existing := range out[key] {
			if existing == text {
				return
			}
		}
		out[key] = append(out[key], text)
	}

	for _, entity := range snap.Alerts.Entity {
		alert := entity.Alert
		if alert == nil {
			continue
		}
		text := alertFallbackText
		if d := alert.GetDescriptionText(); d != nil && len(d.Translation) > 0 {
			text = htmlToText(d.Translation[0].GetText())
		}
		if text == "" {
			continue
		}

		for _, mention := range ExtractLineMentions(text) {
			for _, name := range mention.Lines {
				for _, route := range routesByShortName[name] {
					if route.Type == mention.RouteType {
						add(route, text)
					}
				}
			}
		}

		for _, informed := range alert.InformedEntity {
			switch {
			case informed.RouteId != nil:
				if route, ok := idx.Route(informed.GetRouteId()); ok {
					add(route, text)
				}
			case informed.Trip != nil && informed.Trip.TripId != nil:
				if trip, ok := idx.Trip(informed.Trip.GetTripId()); ok {
					if route, ok := idx.Route(trip.RouteID); ok {
						add(route, text)
					}
				}
			case informed.StopId != nil:
				seen := map[string]struct{}{}
				for _, tripID := range idx.TripsForStop(informed.GetStopId()) {
					trip, ok := idx.Trip(tripID)
					if !ok {
						continue
					}
					if _, dup := seen[trip.RouteID]; dup {
						continue
					}
					seen[trip.RouteID] = struct{}{}
					if route, ok := idx.Route(trip.RouteID); ok {
						add(route, text)
					}
				}
			}
		}
	}
	return out
}

// htmlToText flattens an HTML-bearing alert description to plain text,
// one line per top-level element.
func htmlToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	var lines []string
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			lines = append(lines, t)
		}
	})
	if len(lines) == 0 {
		return strings.TrimSpace(doc.Text())
	}
	return strings.Join(lines, "\n")
}
