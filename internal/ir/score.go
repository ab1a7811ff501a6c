package ir

import (
	"encoding/json"
	"math/big"
)

// NotApplicableScore is how an empty score is displayed.
const NotApplicableScore = "N/A"

// Score is passed / (passed + violated). Not-applicable and needs-review
// findings never enter the denominator.
type Score struct {
	Passed   int
	Violated int
}

// Applicable reports whether the denominator is non-zero.
func (s Score) Applicable() bool {
	return s.Passed+s.Violated > 0
}

// Rat returns the exact ratio. ok is false when the score is N/A.
func (s Score) Rat() (r *big.Rat, ok bool) {
	if !s.Applicable() {
		return nil, false
	}
	return big.NewRat(int64(s.Passed), int64(s.Passed+s.Violated)), true
}

// Float returns the ratio as a float64 in [0,1]. ok is false when N/A.
func (s Score) Float() (v float64, ok bool) {
	r, ok := s.Rat()
	if !ok {
		return 0, false
	}
	v, _ = r.Float64()
	return v, true
}

// Percent renders the score with one decimal, e.g. "85.7%", or "N/A".
func (s Score) Percent() string {
	r, ok := s.Rat()
	if !ok {
		return NotApplicableScore
	}
	return new(big.Rat).Mul(r, big.NewRat(100, 1)).FloatString(1) + "%"
}

// Perfect reports whether every applicable rule passed.
func (s Score) Perfect() bool {
	return s.Applicable() && s.Violated == 0
}

func (s Score) String() string {
	return s.Percent()
}

type scoreJSON struct {
	Passed   int     `json:"passed"`
	Violated int     `json:"violated"`
	Ratio    *string `json:"ratio"`
	Percent  string  `json:"percent"`
}

// MarshalJSON encodes the exact ratio as a string ("6/7") and null when N/A.
func (s Score) MarshalJSON() ([]byte, error) {
	out := scoreJSON{Passed: s.Passed, Violated: s.Violated, Percent: s.Percent()}
	if r, ok := s.Rat(); ok {
		str := r.RatString()
		if r.IsInt() {
			str = r.Num().String() + "/1"
		}
		out.Ratio = &str
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the counts; ratio and percent are derived.
func (s *Score) UnmarshalJSON(b []byte) error {
	var in scoreJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	s.Passed = in.Passed
	s.Violated = in.Violated
	return nil
}
