package envelope

import (
	"fmt"
	"math"
)

// Algorithm is a COSE signature algorithm identifier.
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int64

// Algorithms used by health certificate issuers. Zero means the header did
// not declare an algorithm.
const (
	AlgorithmES256 Algorithm = -7
	AlgorithmES384 Algorithm = -35
	AlgorithmES512 Algorithm = -36
	AlgorithmPS256 Algorithm = -37
	AlgorithmPS384 Algorithm = -38
	AlgorithmPS512 Algorithm = -39
	AlgorithmRS256 Algorithm = -257

	// AlgorithmInvalid marks a header whose algorithm is not an integer or does
	// not fit in an int64.
	AlgorithmInvalid Algorithm = math.MinInt64
)

var algorithmNames = map[Algorithm]string{
	AlgorithmES256: "ES256",
	AlgorithmES384: "ES384",
	AlgorithmES512: "ES512",
	AlgorithmPS256: "PS256",
	AlgorithmPS384: "PS384",
	AlgorithmPS512: "PS512",
	AlgorithmRS256: "RS256",
}

// Known reports whether a is one of the declared algorithms.
func (a Algorithm) Known() bool {
	_, ok := algorithmNames[a]
	return ok
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	switch a {
	case 0:
		return "none"
	case AlgorithmInvalid:
		return "invalid"
	}
	return fmt.Sprintf("unknown(%d)", int64(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
