package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pagemorph/pagemorph/internal/errs"
	"github.com/pagemorph/pagemorph/internal/models"
)

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.TransformationKind
		params  map[string]any
		wantErr bool
	}{
		{
			name:   "blog post valid",
			kind:   models.KindBlogPost,
			params: map[string]any{"word_count": float64(800), "tone": "professional"},
		},
		{
			name:    "blog post word count too low",
			kind:    models.KindBlogPost,
			params:  map[string]any{"word_count": float64(100), "tone": "casual"},
			wantErr: true,
		},
		{
			name:    "blog post bad tone",
			kind:    models.KindBlogPost,
			params:  map[string]any{"word_count": float64(500), "tone": "sarcastic"},
			wantErr: true,
		},
		{
			name:    "blog post unknown key rejected",
			kind:    models.KindBlogPost,
			params:  map[string]any{"word_count": float64(500), "tone": "casual", "emoji": true},
			wantErr: true,
		},
		{
			name:   "social media valid",
			kind:   models.KindSocialMedia,
			params: map[string]any{"platform": "linkedin", "post_count": float64(3)},
		},
		{
			name:    "social media bad platform",
			kind:    models.KindSocialMedia,
			params:  map[string]any{"platform": "myspace", "post_count": float64(3)},
			wantErr: true,
		},
		{
			name:    "social media post count out of range",
			kind:    models.KindSocialMedia,
			params:  map[string]any{"platform": "twitter", "post_count": float64(11)},
			wantErr: true,
		},
		{
			name:   "email sequence valid",
			kind:   models.KindEmailSequence,
			params: map[string]any{"email_count": float64(5)},
		},
		{
			name:    "email sequence fractional count",
			kind:    models.KindEmailSequence,
			params:  map[string]any{"email_count": 2.5},
			wantErr: true,
		},
		{
			name:   "newsletter valid",
			kind:   models.KindNewsletter,
			params: map[string]any{"sections": []any{"intro", "news"}},
		},
		{
			name:    "newsletter non-string section",
			kind:    models.KindNewsletter,
			params:  map[string]any{"sections": []any{"intro", 7}},
			wantErr: true,
		},
		{
			name:   "summary valid",
			kind:   models.KindSummary,
			params: map[string]any{"length": float64(200)},
		},
		{
			name:    "summary missing length",
			kind:    models.KindSummary,
			params:  map[string]any{},
			wantErr: true,
		},
		{
			name:   "custom valid",
			kind:   models.KindCustom,
			params: map[string]any{"custom_instructions": "rewrite as a haiku"},
		},
		{
			name:    "custom empty instructions",
			kind:    models.KindCustom,
			params:  map[string]any{"custom_instructions": ""},
			wantErr: true,
		},
		{
			name:    "unknown kind",
			kind:    models.TransformationKind("podcast"),
			params:  map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.kind, tt.params)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
