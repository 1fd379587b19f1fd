package frontend

import (
	"encoding/json"
	"time"

	"github.com/privacysandbox/pbs/pkg/pbserrors"
)

// keyEntry is one intent as it appears in either wire schema version.
type keyEntry struct {
	Key           string `json:"key"`
	Token         int    `json:"token"`
	ReportingTime string `json:"reporting_time"`
}

// bodyV1 is the flat-list schema, spec section 6's "Begin/Prepare request
// body v1.0".
type bodyV1 struct {
	Version string     `json:"v"`
	Keys    []keyEntry `json:"t"`
}

// originGroup is one reporting-origin's intents in the v2.0 schema.
type originGroup struct {
	ReportingOrigin string     `json:"reporting_origin"`
	Keys            []keyEntry `json:"keys"`
}

// bodyV2 is the per-intent-origin schema, spec section 6's v2.0 body.
type bodyV2 struct {
	Version string        `json:"v"`
	Data    []originGroup `json:"data"`
}

// parsedIntent is one intent after validation, positioned at its original
// request index so BudgetExhausted responses can report indices correctly.
type parsedIntent struct {
	requestIndex    int
	reportingOrigin string
	key             string
	token           uint8
	timeBucketNanos uint64
}

// parseVersionProbe is decoded first to discover which schema applies.
type parseVersionProbe struct {
	Version string `json:"v"`
}

// dedupeKey identifies a (key, reporting_time) pair for duplicate detection
// within a single request, per spec 4.8.
type dedupeKey struct {
	key           string
	reportingTime string
}

func validateIntents(defaultOrigin string, groups []originGroup) ([]parsedIntent, error) {
	var out []parsedIntent
	seen := make(map[dedupeKey]struct{})
	index := 0

	for _, group := range groups {
		origin := group.ReportingOrigin
		if origin == "" {
			origin = defaultOrigin
		}
		for _, ke := range group.Keys {
			if ke.Key == "" {
				return nil, pbserrors.New(pbserrors.InvalidRequestBody, "intent %d: empty key", index)
			}
			if ke.Token < 1 || ke.Token > 255 {
				return nil, pbserrors.New(pbserrors.InvalidRequestBody, "intent %d: token %d out of range [1,255]", index, ke.Token)
			}
			ts, err := time.Parse(time.RFC3339, ke.ReportingTime)
			if err != nil || !hasTrailingZ(ke.ReportingTime) {
				return nil, pbserrors.New(pbserrors.InvalidReportingTime, "intent %d: invalid reporting_time %q", index, ke.ReportingTime)
			}

			dk := dedupeKey{key: ke.Key, reportingTime: ke.ReportingTime}
			if _, ok := seen[dk]; ok {
				return nil, pbserrors.New(pbserrors.DuplicateKey, "intent %d: duplicate (key, reporting_time) %v", index, dk)
			}
			seen[dk] = struct{}{}

			out = append(out, parsedIntent{
				requestIndex:    index,
				reportingOrigin: origin,
				key:             ke.Key,
				token:           uint8(ke.Token),
				timeBucketNanos: uint64(ts.UnixNano()),
			})
			index++
		}
	}

	if len(out) == 0 {
		return nil, pbserrors.New(pbserrors.NoKeysAvailable, "request carries no intents")
	}
	return out, nil
}

func hasTrailingZ(s string) bool {
	return len(s) > 0 && s[len(s)-1] == 'Z'
}

// parseBody dispatches on the wire-level "v" field to the flat (1.0) or
// per-origin (2.0) schema, then validates every intent.
func parseBody(raw []byte, defaultOrigin string) ([]parsedIntent, error) {
	var probe parseVersionProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, pbserrors.New(pbserrors.InvalidRequestBody, "malformed JSON body: %v", err)
	}

	switch probe.Version {
	case "1.0":
		var body bodyV1
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, pbserrors.New(pbserrors.InvalidRequestBody, "malformed v1.0 body: %v", err)
		}
		return validateIntents(defaultOrigin, []originGroup{{ReportingOrigin: defaultOrigin, Keys: body.Keys}})
	case "2.0":
		var body bodyV2
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, pbserrors.New(pbserrors.InvalidRequestBody, "malformed v2.0 body: %v", err)
		}
		return validateIntents(defaultOrigin, body.Data)
	default:
		return nil, pbserrors.New(pbserrors.InvalidRequestBody, "unknown body schema version %q", probe.Version)
	}
}
