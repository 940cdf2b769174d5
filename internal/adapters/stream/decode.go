package stream

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
)

var errEmptyPayload = errors.New("empty payload")

// Decode accepts a bare number, a numeric string with an optional percent sign,
// or an object carrying level (or contamination_percent) and an optional
// tierHint (or risk_level). The level is clamped to [0, 100].
func Decode(payload []byte) (domain.Reading, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return domain.Reading{}, errEmptyPayload
	}
	if !gjson.ValidBytes(payload) {
		level, err := parseLevel(string(payload))
		if err != nil {
			return domain.Reading{}, err
		}
		return domain.Reading{Level: level}, nil
	}

	v := gjson.ParseBytes(payload)
	switch {
	case v.Type == gjson.Number:
		return domain.Reading{Level: domain.ClampLevel(v.Num)}, nil
	case v.Type == gjson.String:
		level, err := parseLevel(v.Str)
		if err != nil {
			return domain.Reading{}, err
		}
		return domain.Reading{Level: level}, nil
	case v.IsObject():
		lv := v.Get("level")
		if !lv.Exists() {
			lv = v.Get("contamination_percent")
		}
		var (
			level float64
			err   error
		)
		switch lv.Type {
		case gjson.Number:
			level = domain.ClampLevel(lv.Num)
		case gjson.String:
			level, err = parseLevel(lv.Str)
		default:
			err = fmt.Errorf("object payload has no level")
		}
		if err != nil {
			return domain.Reading{}, err
		}
		hint := v.Get("tierHint")
		if !hint.Exists() {
			hint = v.Get("risk_level")
		}
		return domain.Reading{Level: level, TierHint: strings.TrimSpace(hint.String())}, nil
	default:
		return domain.Reading{}, fmt.Errorf("unsupported payload %s", v.Type)
	}
}

func parseLevel(s string) (float64, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, errEmptyPayload
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse level %q: %w", s, err)
	}
	return domain.ClampLevel(f), nil
}
