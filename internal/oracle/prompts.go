package oracle

import (
	"fmt"
	"strings"

	"research-enricher/internal/models"
)

const basicFactsPrompt = `Extract ONLY the following basic metadata from this research article in JSON format:

1. title: Article title (string)
2. authors: List of author names (array of strings)
3. publication_year: Year of publication (integer)
4. doi: DOI number, journal URL, or publication link if available (or 'Not found' if none)

Article text:
%s

Respond ONLY with valid JSON:
{
  "title": "Article Title",
  "authors": ["Author Name"],
  "publication_year": 2024,
  "doi": "DOI or 'Not found'"
}`

const analysisPrompt = `Analyze this research article and extract the following information in JSON format:

1. relevance_score: Rate 0-10 how relevant this study is to dyscalculia/math learning disabilities:
   - 10: Directly studies dyscalculia or math learning disabilities
   - 7-9: Studies math education, number sense, or arithmetic interventions
   - 4-6: Studies general learning disabilities, cognitive development, or educational methods
   - 1-3: Tangentially related (brain function, child development, but not math-specific)
   - 0: Not related to learning or education
2. research_category: Classify as:
   - "direct" if it contributes to understanding or addressing dyscalculia AND provides information that can be directly applied by educators and self-motivated adults addressing dyscalculia
   - "supportive" if it is not directly about dyscalculia but provides useful context, such as general education strategies, cognitive psychology, neuroscience of learning, or studies on other learning disabilities

For items 3-7 below, write in a friendly, conversational tone, like explaining to a parent or teacher over coffee.

3. summary: 3-5 sentences in everyday terms explaining which findings, methods, or insights matter for understanding dyscalculia or math learning difficulties, any research gaps or trends the study identifies, and how practitioners or individuals with dyscalculia could use this knowledge.

For items 4-7, only provide information if research_category is "direct". Otherwise respond with "n/a".

4. one_on_one_applicability: 1-2 sentences with actionable strategies for parents/tutors using everyday materials
5. small_group_applicability: 1-2 sentences with concrete methods for special education teachers
6. large_group_applicability: 1-2 sentences with practical adaptations for general education teachers
7. self_education_applicability: 1-2 sentences on how individuals with dyscalculia can use this to improve their own math skills
8. doi: DOI number, journal URL, or publication link if available (or 'Not found' if none)
9. tags: 4-6 specific tags capturing the key aspects of this research. Use scientific terminology when necessary (e.g., "parietal cortex", "working memory") but prefer accessible wording (e.g., "times tables" rather than "multiplication automaticity")

Respond ONLY with valid JSON in this exact format:
{
  "relevance_score": 8,
  "research_category": "direct",
  "summary": "Conversational summary.",
  "one_on_one_applicability": "Strategies for parents and tutors.",
  "small_group_applicability": "Methods for special education teachers.",
  "large_group_applicability": "Adaptations for general education classrooms.",
  "self_education_applicability": "How adults with dyscalculia can use this.",
  "doi": "DOI or 'Not found'",
  "tags": ["tag one", "tag two", "tag three", "tag four"]
}

Article text:
%s`

const tagExplanationPrompt = `Analyze these tags from dyscalculia research and classify each one:

Tags: %s%s

For each tag, determine:
1. tag_type: "direct" if directly related to dyscalculia/math learning disabilities, or "supportive" if providing context/methodology
2. relevance: Brief explanation of relevance

Respond ONLY with JSON keyed by the exact tag text:
{
  "tag1": {"tag_type": "direct", "relevance": "explanation"},
  "tag2": {"tag_type": "supportive", "relevance": "explanation"}
}`

const tagEnhancementPrompt = `Based on multiple research articles, create a comprehensive definition for this tag in dyscalculia research.

Tag: %s

Current definition: %s

Articles using this tag (%d total, showing up to %d):
%s

Create an enhanced definition that synthesizes insights from these articles, explains the tag's relevance to dyscalculia research, notes patterns or key findings across studies, and remains concise (2-4 sentences).

Respond ONLY with JSON:
{
  "enhanced_definition": "Your comprehensive definition here",
  "key_insights": "Brief note on patterns or trends across studies"
}`

func buildBasicFactsPrompt(text string) string {
	return fmt.Sprintf(basicFactsPrompt, text)
}

func buildAnalysisPrompt(text string) string {
	return fmt.Sprintf(analysisPrompt, text)
}

func buildTagPrompt(tags []string, citation string) string {
	context := ""
	if citation != "" {
		context = "\n\nThese tags come from: " + citation
	}
	return fmt.Sprintf(tagExplanationPrompt, strings.Join(tags, ", "), context)
}

func buildEnhancementPrompt(tag, current string, records []models.DocumentRecord, limit int) string {
	if current == "" {
		current = "None"
	}
	shown := records
	if len(shown) > limit {
		shown = shown[:limit]
	}

	var articles strings.Builder
	for i, rec := range shown {
		if i > 0 {
			articles.WriteString("\n\n")
		}
		fmt.Fprintf(&articles, "Article %d: %s (%s)\n", i+1, rec.Title, rec.PublicationYear)
		fmt.Fprintf(&articles, "Authors: %s\n", strings.Join(rec.Authors, ", "))
		fmt.Fprintf(&articles, "Relevance: %d/10\n", rec.RelevanceScore)
		fmt.Fprintf(&articles, "Summary: %s", rec.Summary)
	}

	return fmt.Sprintf(tagEnhancementPrompt, tag, current, len(records), limit, articles.String())
}
