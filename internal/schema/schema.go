// Package schema validates protocol payloads before they reach the match
// pipeline. Validation failures are reported as unprocessable entities,
// keeping malformed-JSON errors (bad requests) distinct.
package schema

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"match-gateway/internal/patient"
	dErrors "match-gateway/pkg/domain-errors"
)

// ValidateRequest checks a decoded match request against the protocol
// schema: a patient id, a reachable contact, coded features, and at least
// one of features or genomicFeatures.
func ValidateRequest(req *patient.MatchRequest) error {
	p := req.Patient

	err := validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Contact, validation.By(func(any) error {
			return validation.ValidateStruct(&p.Contact,
				validation.Field(&p.Contact.Name, validation.Required),
				validation.Field(&p.Contact.Href, validation.Required),
			)
		})),
		validation.Field(&p.Features, validation.Each(validation.By(featureHasID))),
	)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnprocessable, "patient failed schema validation")
	}

	if len(p.Features) == 0 && len(p.GenomicFeatures) == 0 {
		return dErrors.New(dErrors.CodeUnprocessable,
			"at least one of features or genomicFeatures must be provided")
	}
	return nil
}

func featureHasID(value any) error {
	feature, _ := value.(patient.Feature)
	return validation.ValidateStruct(&feature,
		validation.Field(&feature.ID, validation.Required),
	)
}

// ValidateResponse checks an outgoing or relayed match response: every
// result needs a patient id and a score in [0, 1).
func ValidateResponse(resp *patient.MatchResponse) error {
	for _, result := range resp.Results {
		if result.Patient.ID == "" {
			return dErrors.New(dErrors.CodeUnprocessable, "match result is missing a patient id")
		}
		score := result.Score.Patient
		if score < 0 || score >= 1 {
			return dErrors.Newf(dErrors.CodeUnprocessable,
				"score %v for patient %q is outside [0, 1)", score, result.Patient.ID)
		}
	}
	return nil
}
