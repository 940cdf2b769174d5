// Package classifier turns a reading into a classification by asking a
// language model, and reports a typed failure whenever the reply is not a
// complete, well-formed result.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/sanjai-web/Micro-Plastic-Detection/internal/domain"
	"github.com/sanjai-web/Micro-Plastic-Detection/internal/ports"
)

const op = "classify"

var errNoObject = errors.New("reply contains no JSON object")

// reply mirrors the fields a usable answer must carry.
type reply struct {
	RiskLevel    string   `validate:"required,oneof=low medium high critical"`
	Summary      string   `validate:"required"`
	HealthImpact string   `validate:"required"`
	Remedies     []string `validate:"required,min=1,dive,required"`
	NextTestDays int      `validate:"min=1,max=365"`
}

// Remote classifies through a Completer.
type Remote struct {
	completer ports.Completer
	validate  *validator.Validate
}

func NewRemote(c ports.Completer) *Remote {
	return &Remote{completer: c, validate: validator.New()}
}

func (r *Remote) Name() string {
	if r.completer == nil {
		return "remote"
	}
	return "remote/" + r.completer.Name()
}

func (r *Remote) Classify(ctx context.Context, level float64, cat domain.Category) (res domain.ClassificationResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = domain.ClassificationResult{}, domain.Wrap(domain.KindProtocol, op, fmt.Errorf("panic: %v", p))
		}
	}()
	if r.completer == nil {
		return domain.ClassificationResult{}, domain.Wrap(domain.KindTransient, op, errors.New("no completer"))
	}

	text, err := r.completer.Complete(ctx, BuildPrompt(level, cat))
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return domain.ClassificationResult{}, err
		}
		return domain.ClassificationResult{}, domain.Wrap(domain.KindTransient, op, err)
	}
	return r.Parse(text)
}

// Parse extracts and validates a classification from free-form reply text.
func (r *Remote) Parse(text string) (domain.ClassificationResult, error) {
	block, ok := extractObject(text)
	if !ok {
		return domain.ClassificationResult{}, domain.Wrap(domain.KindProtocol, op, errNoObject)
	}

	obj := gjson.Parse(block)
	var rep reply
	if v := obj.Get("riskLevel"); v.Type == gjson.String {
		rep.RiskLevel = strings.ToLower(strings.TrimSpace(v.Str))
	}
	if v := obj.Get("summary"); v.Type == gjson.String {
		rep.Summary = strings.TrimSpace(v.Str)
	}
	if v := obj.Get("healthImpact"); v.Type == gjson.String {
		rep.HealthImpact = strings.TrimSpace(v.Str)
	}
	if v := obj.Get("remedies"); v.IsArray() {
		for _, item := range v.Array() {
			if item.Type != gjson.String {
				return domain.ClassificationResult{}, domain.Wrap(domain.KindProtocol, op, errors.New("remedies must be strings"))
			}
			rep.Remedies = append(rep.Remedies, strings.TrimSpace(item.Str))
		}
	}
	if v := obj.Get("nextTestDays"); v.Type == gjson.Number {
		if v.Num != math.Trunc(v.Num) || v.Num > math.MaxInt32 || v.Num < math.MinInt32 {
			return domain.ClassificationResult{}, domain.Wrap(domain.KindProtocol, op, fmt.Errorf("nextTestDays %v is not a whole number", v.Num))
		}
		rep.NextTestDays = int(v.Num)
	}

	if err := r.validate.Struct(rep); err != nil {
		return domain.ClassificationResult{}, domain.Wrap(domain.KindProtocol, op, err)
	}
	tier, err := domain.ParseRiskTier(rep.RiskLevel)
	if err != nil {
		return domain.ClassificationResult{}, domain.Wrap(domain.KindProtocol, op, err)
	}
	return domain.ClassificationResult{
		Tier:       tier,
		Summary:    rep.Summary,
		Impact:     rep.HealthImpact,
		Remedies:   rep.Remedies,
		RetestDays: rep.NextTestDays,
	}, nil
}
