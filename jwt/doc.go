// Package jwt signs session claims into compact HMAC tokens and parses them back,
// reporting every rejection as exactly one of [ErrMalformed], [ErrSignatureInvalid],
// or [ErrExpired].
//
// The signing algorithm is fixed when a [Codec] is built. The algorithm named in a
// token header is never trusted to select verification behavior.
package jwt
