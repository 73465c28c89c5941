package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answer is a challenge answer: either free text or a number.
type Answer struct {
	text    string
	number  float64
	numeric bool
}

// TextAnswer creates a text answer, compared case-insensitively.
func TextAnswer(s string) Answer {
	return Answer{text: s}
}

// NumberAnswer creates a numeric answer, compared exactly.
func NumberAnswer(n float64) Answer {
	return Answer{number: n, numeric: true}
}

// IsNumeric reports whether the answer is a number.
func (a Answer) IsNumeric() bool {
	return a.numeric
}

// String returns the answer as the user would type it.
func (a Answer) String() string {
	if a.numeric {
		return strconv.FormatFloat(a.number, 'f', -1, 64)
	}
	return a.text
}

// Matches reports whether submitted is a correct response to a.
// Numeric answers compare by value when submitted parses as a number.
func (a Answer) Matches(submitted string) bool {
	s := strings.TrimSpace(submitted)
	if s == "" {
		return false
	}
	if a.numeric {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f == a.number
		}
	}
	return strings.EqualFold(s, strings.TrimSpace(a.String()))
}

// MarshalJSON encodes text answers as JSON strings and numbers as JSON numbers.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.numeric {
		return json.Marshal(a.number)
	}
	return json.Marshal(a.text)
}

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = Answer{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = TextAnswer(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("answer must be a string or a number: %w", err)
	}
	*a = NumberAnswer(n)
	return nil
}
