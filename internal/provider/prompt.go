package provider

import (
	"fmt"
	"strings"

	"github.com/pagemorph/pagemorph/internal/models"
)

// BuildPrompt renders the user prompt for a request. Each kind folds its
// validated parameters into the instruction; absent optional parameters
// simply leave their clause out.
func BuildPrompt(req Request) string {
	var b strings.Builder
	if req.SourceText != "" {
		fmt.Fprintf(&b, "Here is the original content:\n\n%s\n\n", req.SourceText)
	}

	p := req.Parameters
	switch req.Kind {
	case models.KindBlogPost:
		b.WriteString("Transform this content into a well-structured blog post. ")
		if wc, ok := intParam(p, "word_count"); ok {
			fmt.Fprintf(&b, "The target word count is around %d words. ", wc)
		}
		if tone, ok := p["tone"].(string); ok {
			fmt.Fprintf(&b, "Use a %s tone. ", tone)
		}
		b.WriteString("Include a catchy title, introduction, main sections with subheadings, and a conclusion.")

	case models.KindSocialMedia:
		platform, _ := p["platform"].(string)
		if platform == "" {
			platform = "general"
		}
		fmt.Fprintf(&b, "Create social media content for %s based on this information. ", platform)
		if n, ok := intParam(p, "post_count"); ok {
			fmt.Fprintf(&b, "Generate %d distinct posts. ", n)
		}
		b.WriteString("Each post should be engaging, concise, and include relevant hashtags.")

	case models.KindEmailSequence:
		b.WriteString("Transform this content into an email sequence. ")
		if n, ok := intParam(p, "email_count"); ok {
			fmt.Fprintf(&b, "Create a series of %d emails. ", n)
		}
		b.WriteString("Include subject lines and email body content. Each email should have a clear purpose, engaging opening, valuable content, and a strong call-to-action.")

	case models.KindNewsletter:
		b.WriteString("Convert this content into a newsletter format. ")
		if sections := stringListParam(p, "sections"); len(sections) > 0 {
			fmt.Fprintf(&b, "Include the following sections: %s. ", strings.Join(sections, ", "))
		}
		b.WriteString("The newsletter should have a clear structure, engaging introduction, main content sections, and a conclusion with next steps or call-to-action.")

	case models.KindSummary:
		b.WriteString("Create a concise summary of this content. ")
		if n, ok := intParam(p, "length"); ok {
			fmt.Fprintf(&b, "The summary should be approximately %d words. ", n)
		}
		b.WriteString("Capture the key points, main arguments, and essential information while maintaining clarity.")

	default:
		if instructions, ok := p["custom_instructions"].(string); ok && instructions != "" {
			b.WriteString(instructions)
		} else {
			b.WriteString("Transform this content into a new format while preserving the key information.")
		}
	}

	return b.String()
}

// intParam reads a numeric parameter that may arrive as float64 (JSON
// decoding) or int (internal callers).
func intParam(p map[string]any, key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func stringListParam(p map[string]any, key string) []string {
	out := []string{}
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
