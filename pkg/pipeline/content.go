package pipeline

import (
	"context"
	"strings"

	"messagecraft/pkg/templates"
)

var (
	fallbackHeadlines = []string{
		"Get results you can actually measure",
		"Stop guessing. Start seeing outcomes.",
		"The partner your competitors wish they had",
	}
	fallbackLinkedInPosts = []string{
		"Most teams don't have a results problem. They have a clarity problem.\n\nWhen you can't articulate what makes you different, every deal becomes a price negotiation. We help you fix that.",
		"A customer asked us last week: \"How do I know this will work for us?\"\n\nFair question. Here's our answer: we start small, we measure everything, and we only scale what's working.",
	}
	fallbackEmails = []map[string]any{
		{
			"subject": "Quick question about your current approach",
			"body":    "Hi there,\n\nI noticed your team has been growing. Most teams at that stage hit the same wall: messaging that worked at a smaller scale stops landing.\n\nWe help companies fix exactly that. Worth a 15-minute call?\n\nBest regards",
		},
		{
			"subject": "Following up on measurable results",
			"body":    "Hi,\n\nJust following up on my last note. If articulating your value is on the roadmap this quarter, I'd love to show you how we've handled it for teams like yours.\n\nNo pressure either way.\n\nBest regards",
		},
	}
	fallbackOneLiners = []string{
		"We turn vague value propositions into messages that close deals.",
		"Our customers stop competing on price because they finally sound different.",
		"If you can't explain why you're better in one sentence, that's where we come in.",
		"We make your strengths obvious to the people who need to see them.",
		"Clear messaging isn't a luxury. It's the difference between a pipeline and a trickle.",
	}
)

// RunContent generates channel-ready content from the messaging
// framework: website headlines, LinkedIn posts, outreach emails, and
// sales one-liners, each via its own prompt.
func (e *Executor) RunContent(ctx context.Context, st *State) {
	data := templateData(st)
	var degraded []string

	headlineText, fell := e.RunText(ctx, StageContent, templates.WebsiteHeadlinesTemplate, data, "")
	if fell {
		degraded = append(degraded, "website_headlines")
	}
	headlines := parseList(headlineText, 3, fallbackHeadlines)

	postText, fell := e.RunText(ctx, StageContent, templates.LinkedInPostsTemplate, data, "")
	if fell {
		degraded = append(degraded, "linkedin_posts")
	}
	posts := parsePosts(postText, 2)

	emailText, fell := e.RunText(ctx, StageContent, templates.EmailTemplatesTemplate, data, "")
	if fell {
		degraded = append(degraded, "email_templates")
	}
	emails := parseEmails(emailText, 2)

	oneLinerText, fell := e.RunText(ctx, StageContent, templates.SalesOneLinersTemplate, data, "")
	if fell {
		degraded = append(degraded, "sales_one_liners")
	}
	oneLiners := parseList(oneLinerText, 5, fallbackOneLiners)

	st.Content = Result{
		"website_headlines": toAny(headlines),
		"linkedin_posts":    toAny(posts),
		"email_templates":   emails,
		"sales_one_liners":  toAny(oneLiners),
	}
	if len(degraded) > 0 {
		st.Content["fallback_reason"] = "static fallback for " + strings.Join(degraded, ", ")
	}
}

// parsePosts splits "---"-separated post drafts, padding from the static
// set when the model produced fewer than requested.
func parsePosts(text string, want int) []string {
	sections := splitSections(text)
	if len(sections) > want {
		sections = sections[:want]
	}
	for i := len(sections); i < want; i++ {
		sections = append(sections, fallbackLinkedInPosts[i%len(fallbackLinkedInPosts)])
	}
	return sections
}

// parseEmails splits "---"-separated email drafts and extracts the
// Subject:/Body: structure from each.
func parseEmails(text string, want int) []any {
	emails := make([]any, 0, want)
	for _, section := range splitSections(text) {
		subject, body := parseEmail(section)
		if subject == "" && body == "" {
			continue
		}
		if subject == "" {
			subject = fallbackEmails[len(emails)%len(fallbackEmails)]["subject"].(string)
		}
		emails = append(emails, map[string]any{"subject": subject, "body": body})
		if len(emails) == want {
			break
		}
	}
	for i := len(emails); i < want; i++ {
		fb := fallbackEmails[i%len(fallbackEmails)]
		emails = append(emails, map[string]any{"subject": fb["subject"], "body": fb["body"]})
	}
	return emails
}
