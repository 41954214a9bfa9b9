package service

import (
	"fmt"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
)

// Parameter shapes per transformation kind. Unknown keys are rejected;
// numeric values may arrive as float64 from JSON decoding.

var blogPostTones = map[string]bool{
	"professional": true, "casual": true, "academic": true,
	"friendly": true, "persuasive": true,
}

var socialPlatforms = map[string]bool{
	"twitter": true, "instagram": true, "linkedin": true, "facebook": true,
}

const maxCustomInstructions = 4000

// ValidateParameters checks a parameter map against its kind's shape.
// It is applied to the effective (post-merge) parameters so a preset
// cannot smuggle an out-of-range value past a valid override.
func ValidateParameters(kind models.TransformationKind, params map[string]any) error {
	switch kind {
	case models.KindBlogPost:
		if err := rejectUnknown(params, "word_count", "tone"); err != nil {
			return err
		}
		if err := requireIntRange(params, "word_count", 300, 3000); err != nil {
			return err
		}
		return requireEnum(params, "tone", blogPostTones)

	case models.KindSocialMedia:
		if err := rejectUnknown(params, "platform", "post_count"); err != nil {
			return err
		}
		if err := requireEnum(params, "platform", socialPlatforms); err != nil {
			return err
		}
		return requireIntRange(params, "post_count", 1, 10)

	case models.KindEmailSequence:
		if err := rejectUnknown(params, "email_count"); err != nil {
			return err
		}
		return requireIntRange(params, "email_count", 1, 7)

	case models.KindNewsletter:
		if err := rejectUnknown(params, "sections"); err != nil {
			return err
		}
		return requireStringList(params, "sections")

	case models.KindSummary:
		if err := rejectUnknown(params, "length"); err != nil {
			return err
		}
		return requireIntRange(params, "length", 100, 1000)

	case models.KindCustom:
		if err := rejectUnknown(params, "custom_instructions"); err != nil {
			return err
		}
		v, ok := params["custom_instructions"]
		if !ok {
			return errs.New(errs.InvalidInput, "custom_instructions is required")
		}
		s, ok := v.(string)
		if !ok {
			return errs.New(errs.InvalidInput, "custom_instructions must be a string")
		}
		if len(s) == 0 || len(s) > maxCustomInstructions {
			return errs.New(errs.InvalidInput,
				fmt.Sprintf("custom_instructions must be 1..%d characters", maxCustomInstructions))
		}
		return nil

	default:
		return errs.New(errs.InvalidInput, fmt.Sprintf("unknown transformation kind %q", kind))
	}
}

func rejectUnknown(params map[string]any, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	for k := range params {
		if !ok[k] {
			return errs.New(errs.InvalidInput, fmt.Sprintf("unknown parameter %q", k))
		}
	}
	return nil
}

func requireIntRange(params map[string]any, key string, min, max int) error {
	v, ok := params[key]
	if !ok {
		return errs.New(errs.InvalidInput, fmt.Sprintf("%s is required", key))
	}
	n, ok := asInt(v)
	if !ok {
		return errs.New(errs.InvalidInput, fmt.Sprintf("%s must be an integer", key))
	}
	if n < min || n > max {
		return errs.New(errs.InvalidInput, fmt.Sprintf("%s must be in [%d..%d]", key, min, max))
	}
	return nil
}

func requireEnum(params map[string]any, key string, allowed map[string]bool) error {
	v, ok := params[key]
	if !ok {
		return errs.New(errs.InvalidInput, fmt.Sprintf("%s is required", key))
	}
	s, ok := v.(string)
	if !ok || !allowed[s] {
		return errs.New(errs.InvalidInput, fmt.Sprintf("invalid %s", key))
	}
	return nil
}

func requireStringList(params map[string]any, key string) error {
	v, ok := params[key]
	if !ok {
		return errs.New(errs.InvalidInput, fmt.Sprintf("%s is required", key))
	}
	switch list := v.(type) {
	case []string:
		return nil
	case []any:
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return errs.New(errs.InvalidInput, fmt.Sprintf("%s must contain only strings", key))
			}
		}
		return nil
	default:
		return errs.New(errs.InvalidInput, fmt.Sprintf("%s must be a list of strings", key))
	}
}

// asInt accepts int (internal callers) and float64 (JSON) but rejects
// fractional values.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
