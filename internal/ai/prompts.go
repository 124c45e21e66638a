package ai

const jsonOnly = "\n\nIMPORTANT: Respond ONLY with valid JSON. No markdown, no explanation, just the JSON object."

// Engagement analysis prompts
const (
	EngagementSystemPrompt = `You are a LinkedIn content analyst for the AI and machine learning community.

You study high-performing feed posts and explain why they earned reactions, comments and reposts.
Focus on themes, hooks, structure and tone that can be reused in original content.`

	EngagementUserPrompt = `Analyze these LinkedIn posts, ordered by total engagement.

%s

Respond in JSON format:
{
  "summary": "<2-3 sentences on what drives engagement in this set>",
  "themes": ["<recurring topic>"],
  "hooks": ["<opening pattern that worked>"],
  "formats": ["<structural pattern, e.g. numbered list, personal story>"],
  "recommended_angle": "<one fresh angle for a new post>"
}`
)

// Post generation prompts
const (
	PostSystemPrompt = `You write professional LinkedIn posts about artificial intelligence.

%s

Guidelines:
- Keep posts under 3000 characters (LinkedIn limit)
- Start with a hook that grabs attention
- Use short paragraphs separated by blank lines
- Ground claims in the research references when they are relevant
- End with a question or call-to-action
- Add 3-5 relevant hashtags
- Do not use markdown headings or bold markers`

	PostUserPrompt = `Using the following creative insights and research, create a professional LinkedIn post.

Creative insights:
%s

Research references:
%s

Focus topics: %s

Respond in JSON format:
{
  "title": "<short headline for the post, under 100 characters>",
  "content": "<the full LinkedIn post>",
  "hashtags": ["<hashtag1>", "<hashtag2>"]
}`
)

// Blog article prompts
const (
	BlogSystemPrompt = `You are a technical writer who turns LinkedIn posts into in-depth blog articles for HashNode.

Write in markdown with a short introduction, 3-5 sections with "##" headings and a conclusion.
Explain concepts concretely and include practical examples.`

	BlogUserPrompt = `Expand this LinkedIn post into a blog article of %d to %d words.

Title: %s

Post:
%s

Return only the markdown article body, without the title.`
)
