package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
)

// Rejection reasons recorded in metrics, audit events and logs. Callers only
// ever see ErrUnauthorized or ErrAuthTokenInvalid.
const (
	ReasonNoBearer         = flows.ReasonNoBearer
	ReasonMalformed        = "malformed"
	ReasonSignatureInvalid = "signature_invalid"
	ReasonExpired          = "expired"
	ReasonSubjectGone      = "subject_gone"
	ReasonStoreUnavailable = flows.ReasonStoreUnavailable
)

// ClassifyTokenError maps a token codec failure onto the public taxonomy.
//
// Malformed, forged and expired tokens all become ErrAuthTokenInvalid. The
// returned reason distinguishes them for operators only.
func ClassifyTokenError(err error) (error, string) {
	switch {
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return ErrAuthTokenInvalid, ReasonSignatureInvalid
	case errors.Is(err, jwt.ErrExpired):
		return ErrAuthTokenInvalid, ReasonExpired
	default:
		return ErrAuthTokenInvalid, ReasonMalformed
	}
}

func classifySubjectGone() (error, string) {
	return ErrAuthTokenInvalid, ReasonSubjectGone
}

func verifyMetric(reason string) MetricID {
	switch reason {
	case "":
		return MetricVerifySuccess
	case ReasonNoBearer:
		return MetricVerifyUnauthorized
	case ReasonMalformed:
		return MetricVerifyMalformed
	case ReasonSignatureInvalid:
		return MetricVerifySignatureInvalid
	case ReasonExpired:
		return MetricVerifyExpired
	case ReasonSubjectGone:
		return MetricVerifySubjectGone
	default:
		return MetricStoreUnavailable
	}
}
