// Package domain models crowdsourced ocean hazard reports and the rules that
// turn two unreliable evidence sources into a verification verdict.
//
// # Evidence Sources
//
// Each report carries a photo reference, a WGS-84 position, a submission time,
// and a self-declared hazard type (tsunami, cyclone, high_tide). Two independent
// collaborators supply evidence about it:
//
//   - an image classifier, returning an [ImageAssessment] (ocean_related,
//     hazard_detected, confidence in [0,1]);
//   - an official alert feed, returning a point-in-time snapshot of
//     [OfficialAlert] values issued by the national warning centre (INCOIS).
//
// Either source may fail. A failed classifier call is "unknown", never
// "negative"; a failed alert feed is an empty snapshot.
//
// # Correlation
//
// [Correlate] keeps the active alerts of the same hazard type whose circle
// contains the report and whose issue time is within 24 hours of the report:
//
//	distance_km     <= alert.radius_km   (haversine, R = 6371 km)
//	|report - issued| <= 24h
//
// Both bounds are inclusive. Matches are ordered by distance, then time
// difference, then most recent issue time. No match is a normal outcome.
//
// # Decision Table
//
// [Decide] applies an ordered rule list; the first rule that applies wins:
//
//	1. assessment present, not ocean related, confidence > 0.5  -> Rejected
//	2. assessment ocean related + hazard detected, matches > 0  -> Verified
//	3. assessment ocean related + hazard detected, no matches   -> Pending
//	4. anything else                                            -> Pending (manual review)
//
// A positive image alone never verifies a report. A confident negative image
// rejects it even when official alerts match.
package domain
