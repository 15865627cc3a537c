package query

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/unklstewy/airspace-assistant/pkg/checklist"
	"github.com/unklstewy/airspace-assistant/pkg/nearest"
	"github.com/unklstewy/airspace-assistant/pkg/reference"
	"github.com/unklstewy/airspace-assistant/pkg/weather"
)

// Fallback sentences, one per failure mode.
const (
	textNoDeparture       = "Departure airport is not available."
	textNoArrival         = "Arrival airport is not available."
	textNoRunways         = "Runways for this airport are not available."
	textNoFrequency       = "This frequency is not available."
	textNoNearestAirport  = "Nearest airport is not available."
	textNoParam           = "This flight parameter is not available."
	textNoNearestRunways  = "Runways for the nearest airport are not available."
	textNoTraffic         = "There is no trafic around you."
	textNoLocation        = "This location is not available."
	textNoWaypoint        = "This waypoint is not available."
	textNoMETAR           = "METAR for this airport is not available."
	textClear             = "&nbsp;"
	etaUnknown            = "N/A"
	checklistNameTemplate = "%s checklist"
)

// METARArgs is the structured payload of a METAR answer.
type METARArgs struct {
	METAR string `json:"metar"`
}

// ChecklistArgs is the structured payload of a checklist answer.
type ChecklistArgs struct {
	Name      string           `json:"name"`
	Checklist []checklist.Item `json:"checklist"`
}

func found(text string) Envelope {
	return Envelope{Text: text, Outcome: Found}
}

func notFound(text string) Envelope {
	return Envelope{Text: text, Outcome: NotFound}
}

func (d *Dispatcher) departureAirport(flight FlightData) Envelope {
	if name, ok := firstKnown(flight.Origin, flight.OriginICAO); ok {
		return found(fmt.Sprintf("The departure airport is %s.", name))
	}
	return notFound(textNoDeparture)
}

func (d *Dispatcher) arrivalAirport(flight FlightData) Envelope {
	if name, ok := firstKnown(flight.Destination, flight.DestinationICAO); ok {
		return found(fmt.Sprintf("The arrival airport is %s.", name))
	}
	return notFound(textNoArrival)
}

func (d *Dispatcher) runwaysAtAirport(snap *reference.Snapshot, r RunwaysAtAirport, flight FlightData) Envelope {
	icao, ok := r.Airport.Resolve(flight)
	if !ok {
		return notFound(textNoRunways)
	}
	rw, ok := snap.RunwaysAt(icao)
	if !ok {
		return notFound(textNoRunways)
	}

	idents := runwayIdents(rw.Runways)
	if len(idents) == 1 {
		return found(fmt.Sprintf("Runway at %s (%s) is %s.", rw.AirportName, rw.ICAO, idents[0]))
	}
	return found(fmt.Sprintf("Runways at %s (%s) are %s.", rw.AirportName, rw.ICAO, joinList(idents)))
}

func (d *Dispatcher) frequencyAtAirport(snap *reference.Snapshot, r FrequencyAtAirport, flight FlightData) Envelope {
	icao, ok := r.Airport.Resolve(flight)
	if !ok {
		return notFound(textNoFrequency)
	}
	return d.frequency(snap, icao, r.TypeCode)
}

func (d *Dispatcher) frequencyAtArrival(snap *reference.Snapshot, r FrequencyAtArrival, flight FlightData) Envelope {
	icao, ok := AirportRef{Role: AirportArrival}.Resolve(flight)
	if !ok {
		return notFound(textNoArrival)
	}
	return d.frequency(snap, icao, r.TypeCode)
}

func (d *Dispatcher) frequency(snap *reference.Snapshot, icao, typeCode string) Envelope {
	m, ok := snap.FrequencyLookup(icao, typeCode)
	if !ok {
		return notFound(textNoFrequency)
	}
	name := m.AirportName
	if name == "" {
		name = m.ICAO
	}
	return found(fmt.Sprintf("The %s frequency at %s is %s.", typeCode, name, weather.FormatNumber(m.MHz)))
}

// nearestAirportTo runs the nearest-airport search shared by three kinds.
func nearestAirportTo(snap *reference.Snapshot, flight FlightData) (nearest.Result[reference.Airport], bool) {
	pos, ok := flight.Position()
	if !ok {
		return nearest.Result[reference.Airport]{}, false
	}
	res, err := nearest.Airport(pos, snap.Airports())
	if err != nil {
		return nearest.Result[reference.Airport]{}, false
	}
	return res, true
}

func (d *Dispatcher) nearestAirport(snap *reference.Snapshot, flight FlightData) Envelope {
	res, ok := nearestAirportTo(snap, flight)
	if !ok {
		return notFound(textNoNearestAirport)
	}
	return found(fmt.Sprintf("The nearest airport is %s (%s) at %.2f nm, at heading %.0f°.",
		res.Entity.Name, res.Entity.ICAO, res.DistanceNM, res.HeadingDeg))
}

// paramUnits maps readable numeric parameters to their unit suffix.
var paramUnits = map[string]string{
	"latitude":       "°",
	"longitude":      "°",
	"heading":        "°",
	"speed":          " kt",
	"vertical_speed": " ft/min",
	"altitude":       " ft",
}

func (d *Dispatcher) currentParam(r CurrentParam, flight FlightData) Envelope {
	param := strings.ToLower(strings.TrimSpace(r.Param))
	param = strings.ReplaceAll(param, " ", "_")

	value, ok := flightParam(flight, param)
	if !ok {
		return notFound(textNoParam)
	}
	return found(fmt.Sprintf("Your current %s is %s%s.",
		strings.ReplaceAll(param, "_", " "), value, paramUnits[param]))
}

func flightParam(flight FlightData, param string) (string, bool) {
	var num *float64
	switch param {
	case "latitude":
		num = flight.Latitude
	case "longitude":
		num = flight.Longitude
	case "heading":
		num = flight.Heading
	case "speed":
		num = flight.Speed
	case "vertical_speed":
		num = flight.VerticalSpeed
	case "altitude":
		num = flight.Altitude
	case "callsign":
		return firstKnown(flight.Callsign)
	case "registration":
		return firstKnown(flight.Registration)
	case "model":
		return firstKnown(flight.ModelText, flight.Model)
	default:
		return "", false
	}
	if num == nil || math.IsNaN(*num) {
		return "", false
	}
	return weather.FormatNumber(*num), true
}

func (d *Dispatcher) runwaysAtNearestAirport(snap *reference.Snapshot, flight FlightData) Envelope {
	res, ok := nearestAirportTo(snap, flight)
	if !ok {
		return notFound(textNoNearestRunways)
	}
	rw, ok := snap.RunwaysAt(res.Entity.ICAO)
	if !ok {
		return notFound(textNoNearestRunways)
	}

	idents := runwayIdents(rw.Runways)
	if len(idents) == 1 {
		return found(fmt.Sprintf("Runway at %s at %.2f nm is %s.", rw.AirportName, res.DistanceNM, idents[0]))
	}
	return found(fmt.Sprintf("Runways at %s at %.2f nm are %s.", rw.AirportName, res.DistanceNM, joinList(idents)))
}

func (d *Dispatcher) nearestTraffic(r NearestTraffic, flight FlightData) Envelope {
	traffic := r.Traffic
	if traffic == nil && d.traffic != nil {
		traffic = d.traffic.Aircraft()
	}
	pos, ok := flight.Position()
	if !ok {
		return notFound(textNoTraffic)
	}
	res, err := nearest.Aircraft(pos, traffic, flight.SelfIDs()...)
	if err != nil {
		return notFound(textNoTraffic)
	}
	return found(fmt.Sprintf("The nearest trafic is %s at %.2f nm, at heading %.0f°.",
		res.Entity.Label(), res.DistanceNM, res.HeadingDeg))
}

func (d *Dispatcher) lengthNearestRunway(snap *reference.Snapshot, flight FlightData) Envelope {
	res, ok := nearestAirportTo(snap, flight)
	if !ok {
		return notFound(textNoNearestRunways)
	}
	rw, ok := snap.RunwaysAt(res.Entity.ICAO)
	if !ok {
		return notFound(textNoNearestRunways)
	}
	longest, ok := reference.LongestRunways(rw.Runways)
	if !ok {
		return notFound(textNoNearestRunways)
	}

	length := weather.FormatNumber(longest.MaxLengthFt)
	if len(longest.Idents) == 1 {
		return found(fmt.Sprintf("The longest runway at %s is %s of length %s ft.",
			rw.AirportName, longest.Idents[0], length))
	}
	return found(fmt.Sprintf("The longest runways at %s are %s of length %s ft.",
		rw.AirportName, joinList(longest.Idents), length))
}

func (d *Dispatcher) eta(r ETA, flight FlightData) Envelope {
	arrival := r.Arrival
	if !r.Given {
		arrival = flight.ETA
	}
	if arrival == nil || arrival.IsZero() {
		return notFound(fmt.Sprintf("Your estimated time of arrival is %s.", etaUnknown))
	}
	return found(fmt.Sprintf("Your estimated time of arrival is %s.", arrival.UTC().Format("15:04")))
}

func (d *Dispatcher) weatherAtAirport(ctx context.Context, snap *reference.Snapshot, r WeatherAtAirport, flight FlightData) Envelope {
	env := d.weatherAtResolvedAirport(ctx, snap, r, flight)
	if env.Outcome == Found {
		return env
	}

	if r.Location == "" {
		return env
	}
	d.logger.Debug("airport weather missing, trying location",
		"airport", r.Airport.Code,
		"location", r.Location)
	return d.weatherAtLocation(ctx, WeatherAtLocation{Param: r.Param, Location: r.Location})
}

func (d *Dispatcher) weatherAtResolvedAirport(ctx context.Context, snap *reference.Snapshot, r WeatherAtAirport, flight FlightData) Envelope {
	icao, ok := r.Airport.Resolve(flight)
	if !ok {
		return notFound(textNoLocation)
	}
	airport, ok := snap.Airport(icao)
	if !ok {
		return notFound(textNoLocation)
	}
	if d.weather == nil {
		return Envelope{Text: textNoLocation, Outcome: Unavailable}
	}

	var obs *weather.Observation
	err := d.call(ctx, func(ctx context.Context) (err error) {
		obs, err = d.weather.AtCoordinates(ctx, airport.Position)
		return err
	})
	if err != nil {
		return Envelope{Text: textNoLocation, Outcome: d.outcomeOf(KindWeatherAtAirport, err)}
	}
	value := weather.FormatParameter(r.Param, obs)
	if value == "" {
		return notFound(textNoLocation)
	}
	return found(fmt.Sprintf("The %s at %s is %s.", r.Param, airport.Name, value))
}

func (d *Dispatcher) weatherAtLocation(ctx context.Context, r WeatherAtLocation) Envelope {
	if strings.TrimSpace(r.Location) == "" {
		return notFound(textNoLocation)
	}
	if d.weather == nil {
		return Envelope{Text: textNoLocation, Outcome: Unavailable}
	}

	var obs *weather.Observation
	err := d.call(ctx, func(ctx context.Context) (err error) {
		obs, err = d.weather.AtPlace(ctx, r.Location)
		return err
	})
	if err != nil {
		return Envelope{Text: textNoLocation, Outcome: d.outcomeOf(KindWeatherAtLocation, err)}
	}
	value := weather.FormatParameter(r.Param, obs)
	if value == "" {
		return notFound(textNoLocation)
	}
	return found(fmt.Sprintf("The %s at %s is %s.", r.Param, r.Location, value))
}

func (d *Dispatcher) weatherAtWaypoint(ctx context.Context, snap *reference.Snapshot, r WeatherAtWaypoint) Envelope {
	wp, ok := snap.Waypoint(r.Ident)
	if !ok {
		return notFound(textNoWaypoint)
	}
	if d.weather == nil {
		return Envelope{Text: textNoWaypoint, Outcome: Unavailable}
	}

	var obs *weather.Observation
	err := d.call(ctx, func(ctx context.Context) (err error) {
		obs, err = d.weather.AtCoordinates(ctx, wp.Position)
		return err
	})
	if err != nil {
		return Envelope{Text: textNoWaypoint, Outcome: d.outcomeOf(KindWeatherAtWaypoint, err)}
	}
	value := weather.FormatParameter(r.Param, obs)
	if value == "" {
		return notFound(textNoWaypoint)
	}
	return found(fmt.Sprintf("The %s at %s is %s.", r.Param, wp.Ident, value))
}

func (d *Dispatcher) metarAtAirport(ctx context.Context, r METARAtAirport, flight FlightData) Envelope {
	icao, ok := r.Airport.Resolve(flight)
	if !ok {
		return notFound(textNoMETAR)
	}
	if d.metar == nil {
		return Envelope{Text: textNoMETAR, Outcome: Unavailable}
	}

	var m *weather.METAR
	err := d.call(ctx, func(ctx context.Context) (err error) {
		m, err = d.metar.METAR(ctx, icao)
		return err
	})
	if err != nil {
		var upstream *weather.UpstreamError
		if errors.As(err, &upstream) && upstream.Message != "" {
			return notFound(upstream.Message)
		}
		return Envelope{Text: textNoMETAR, Outcome: d.outcomeOf(KindMETARAtAirport, err)}
	}

	line := weather.FormatMETAR(icao, m)
	if line == "" {
		return notFound(textNoMETAR)
	}
	return Envelope{
		Text:       MarkerMETAR,
		KindMarker: MarkerMETAR,
		Args:       METARArgs{METAR: line},
		Outcome:    Found,
	}
}

// checklist always answers with a payload; a failed lookup yields an empty
// item list.
func (d *Dispatcher) checklist(ctx context.Context, r Checklist, flight FlightData) Envelope {
	args := ChecklistArgs{
		Name:      fmt.Sprintf(checklistNameTemplate, r.Type),
		Checklist: []checklist.Item{},
	}
	env := Envelope{Text: MarkerChecklist, KindMarker: MarkerChecklist, Outcome: Found}

	if d.checklists == nil {
		env.Outcome = Unavailable
		env.Args = args
		return env
	}

	model, _ := firstKnown(flight.Model)
	var items []checklist.Item
	err := d.call(ctx, func(ctx context.Context) (err error) {
		items, err = d.checklists.Checklist(ctx, r.Type, model)
		return err
	})
	switch {
	case err != nil:
		env.Outcome = d.outcomeOf(KindChecklist, err)
	case len(items) == 0:
		env.Outcome = NotFound
	default:
		args.Checklist = items
	}

	env.Args = args
	return env
}

// joinList joins items as "a", "a and b" or "a, b and c".
func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}

func runwayIdents(runways []reference.RunwayLength) []string {
	idents := make([]string, 0, len(runways))
	for _, r := range runways {
		idents = append(idents, r.Ident)
	}
	return idents
}

func firstKnown(values ...string) (string, bool) {
	for _, v := range values {
		if known(v) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}
