package engine

import (
	"fmt"
	"strings"
)

// Profile carries the optional user details injected into report prompts for
// personalization. A nil *Profile omits the block entirely.
type Profile struct {
	Name           string
	DateOfBirth    string
	GenderIdentity string
	Preferences    string
}

// ScopedQuestion appends a dataset directive to the user question so schema
// discovery considers only the selected tables and data sources.
func ScopedQuestion(question string, datasets []string) string {
	if len(datasets) == 0 {
		return question
	}
	return fmt.Sprintf(
		"%s\n\nImportant: Only consider the following datasets/tables: %s. "+
			"Do not include metadata from any other sources.",
		question, strings.Join(datasets, ", "))
}

const profileBlockTemplate = "USER PROFILE (use this to personalise the report — tone, focus, " +
	"and recommendations):\n" +
	"- Name: %s\n" +
	"- Date of birth: %s\n" +
	"- Gender identity: %s\n" +
	"- Preferences / interests: %s\n\n"

const personalisationInstruction = " Personalise the report for the user: " +
	"address them by name when available, tailor insights and " +
	"recommendations to their stated preferences, date of birth, and " +
	"interests."

func profileParts(p *Profile) (block, instruction string) {
	if p == nil {
		return "", ""
	}
	orNA := func(s string) string {
		if s == "" {
			return "N/A"
		}
		return s
	}
	block = fmt.Sprintf(profileBlockTemplate,
		orNA(p.Name), orNA(p.DateOfBirth), orNA(p.GenderIdentity), orNA(p.Preferences))
	return block, personalisationInstruction
}

// reportTemplate expects: question, profile block, raw data, vql,
// personalisation instruction.
const reportTemplate = "You are a senior data analyst. Using ONLY the data provided below, " +
	"generate a professional analytical report in **Markdown**.\n\n" +
	"CRITICAL LANGUAGE RULE: Detect the language of the USER QUESTION below " +
	"and write the **ENTIRE** report — including ALL section headings, " +
	"subheadings, body text, table headers, recommendations, and every " +
	"single word — in that SAME language. For example, if the question is " +
	"in Spanish, the heading must be \"## 📋 Resumen Ejecutivo\" instead of " +
	"\"## 📋 Executive Summary\", and so on for every section. Do NOT leave " +
	"any heading or text in English unless the user question is in English.\n\n" +
	"USER QUESTION:\n\"%s\"\n\n" +
	"%s" +
	"RAW DATA / ANSWER FROM THE DATABASE:\n" +
	"```\n%s\n```\n\n" +
	"VQL QUERY USED (for methodology reference):\n" +
	"```sql\n%s\n```\n\n" +
	"INSTRUCTIONS — You MUST produce ALL of the following sections " +
	"(translate every section title to the language of the user question). " +
	"Do NOT skip any section. If a section has limited relevance, still " +
	"include it with a brief note.%s\n\n" +
	"REQUIRED SECTIONS (shown here in English — you MUST translate the " +
	"titles to match the user question language):\n\n" +
	"## 📋 Executive Summary\n" +
	"A concise paragraph (3-5 sentences) that **directly and unambiguously** " +
	"answers the user's question. State the conclusion or decision clearly " +
	"in the first sentence, then provide a brief justification grounded in " +
	"the data. Avoid vague or open-ended language — every statement must be " +
	"definitive and supported by specific figures or evidence from the data. " +
	"If a recommendation or decision is made, explain *why* it is the best " +
	"option compared to the alternatives.\n\n" +
	"## 🔍 Methodology\n" +
	"Briefly explain: which tables / views were queried, any filters or " +
	"joins applied, aggregation logic, and the rationale behind the " +
	"approach. Reference the VQL query above.\n\n" +
	"## 📊 Key Findings\n" +
	"Present the main results as a numbered list. Include specific " +
	"numbers, percentages, rankings, or comparisons. Highlight top-N " +
	"rankings, trends, maximums, minimums, or outliers.\n\n" +
	"## 📈 Data Detail\n" +
	"Show supporting data in well-formatted Markdown tables. Add column " +
	"headers and align numbers to the right. Limit to the most relevant " +
	"rows (max ~15) and indicate if more data exists.\n\n" +
	"## 💡 Insights & Interpretation\n" +
	"Provide analytical commentary: patterns, correlations, anomalies, " +
	"or contextual explanations that add value beyond raw numbers.\n\n" +
	"## ✅ Recommendations\n" +
	"Based on the data, suggest actionable next steps, areas for deeper " +
	"analysis, or decisions the user could take.\n\n" +
	"## ⚠️ Caveats & Limitations\n" +
	"Note any data quality issues, missing values, scope limitations, " +
	"or assumptions made during the analysis.\n\n" +
	"FORMATTING RULES:\n" +
	"- Use Markdown headings (##), bold, bullet points, and tables.\n" +
	"- Keep the tone professional and objective.\n" +
	"- Prioritize clarity and readability.\n" +
	"- Every claim MUST be backed by the provided data.\n" +
	"- Do NOT invent data that is not present above.\n" +
	"- REMEMBER: Translate ALL section titles and ALL text to the " +
	"language of the user question. Nothing should remain in English " +
	"unless the user question is in English.\n"

// ReportPrompt builds the report-synthesis prompt from the raw data phase
// response. The prompt is sent to the LLM-only endpoint, which performs no
// VQL generation, so the model can focus entirely on formatting.
func ReportPrompt(question string, data *PhaseResponse, profile *Profile) string {
	block, instruction := profileParts(profile)
	return fmt.Sprintf(reportTemplate,
		question, block, rawAnswer(data), vqlOrNA(data), instruction)
}

// deepDiveDataTemplate expects: question, first raw data.
const deepDiveDataTemplate = "You already answered the following question:\n" +
	"\"%s\"\n\n" +
	"and produced this raw data:\n" +
	"```\n%s\n```\n\n" +
	"Now perform a DEEPER analysis. Specifically:\n" +
	"1. Run additional or complementary queries to uncover patterns, " +
	"correlations, edge cases, or supporting data that were NOT covered " +
	"in the first pass.\n" +
	"2. Look for related metrics, comparisons, rankings, trends over " +
	"time, or breakdowns by category that add analytical depth.\n" +
	"3. Cross-validate the initial results — check for outliers, " +
	"inconsistencies, or alternative interpretations.\n" +
	"4. If possible, compute derived metrics (percentages, averages, " +
	"growth rates, etc.) that enrich the analysis.\n\n" +
	"Return the additional raw data and insights. Focus on DATA " +
	"retrieval, not formatting."

// DeepDivePrompt builds the second data pass prompt from the first data
// phase answer.
func DeepDivePrompt(question string, first *PhaseResponse) string {
	return fmt.Sprintf(deepDiveDataTemplate, question, rawAnswer(first))
}

// deepThinkReportTemplate expects: question, profile block, raw data 1,
// vql 1, raw data 2, vql 2, personalisation instruction.
const deepThinkReportTemplate = "You are a senior data analyst. Using ONLY the data provided below, " +
	"generate a professional, IN-DEPTH analytical report in **Markdown**.\n\n" +
	"CRITICAL LANGUAGE RULE: Detect the language of the USER QUESTION below " +
	"and write the **ENTIRE** report — including ALL section headings, " +
	"subheadings, body text, table headers, recommendations, and every " +
	"single word — in that SAME language.\n\n" +
	"USER QUESTION:\n\"%s\"\n\n" +
	"%s" +
	"PRIMARY DATA (first query):\n" +
	"```\n%s\n```\n\n" +
	"VQL QUERY USED (first query):\n" +
	"```sql\n%s\n```\n\n" +
	"COMPLEMENTARY / DEEP-DIVE DATA (second query):\n" +
	"```\n%s\n```\n\n" +
	"VQL QUERY USED (second query):\n" +
	"```sql\n%s\n```\n\n" +
	"INSTRUCTIONS — You have TWO sets of data from two separate queries. " +
	"You MUST integrate, cross-reference, and synthesize BOTH data sets " +
	"to produce a single, comprehensive, deeply analytical report. " +
	"Do NOT skip any section. If a section has limited relevance, still " +
	"include it with a brief note.%s\n\n" +
	"REQUIRED SECTIONS (shown here in English — you MUST translate the " +
	"titles to match the user question language):\n\n" +
	"## 📋 Executive Summary\n" +
	"A concise paragraph (3-5 sentences) that **directly and unambiguously** " +
	"answers the user's question. State the conclusion or decision clearly " +
	"in the first sentence, then provide a brief justification grounded in " +
	"the data. Avoid vague or open-ended language — every statement must be " +
	"definitive and supported by specific figures from BOTH data sets.\n\n" +
	"## 🔍 Methodology\n" +
	"Explain: which tables / views were queried in EACH pass, filters or " +
	"joins applied, aggregation logic, and the rationale behind running " +
	"two complementary queries. Reference both VQL queries.\n\n" +
	"## 📊 Key Findings\n" +
	"Present the main results as a numbered list. Include specific " +
	"numbers, percentages, rankings, or comparisons. Cross-reference " +
	"findings from both queries to strengthen conclusions.\n\n" +
	"## 📈 Data Detail\n" +
	"Show supporting data in well-formatted Markdown tables. Include data " +
	"from BOTH queries where relevant. Add column headers and align " +
	"numbers to the right. Limit to the most relevant rows (max ~15 per " +
	"table) and indicate if more data exists.\n\n" +
	"## 🔬 Deep Analysis\n" +
	"This section is UNIQUE to the deep-think report. Provide advanced " +
	"analytical commentary: cross-correlations between the two data sets, " +
	"derived metrics, trend analysis, statistical patterns, and any " +
	"non-obvious insights that only emerge when combining both queries.\n\n" +
	"## 💡 Insights & Interpretation\n" +
	"Provide analytical commentary: patterns, correlations, anomalies, " +
	"or contextual explanations that add value beyond raw numbers.\n\n" +
	"## ✅ Recommendations\n" +
	"Based on the combined data, suggest actionable next steps, areas for " +
	"deeper analysis, or decisions the user could take. Be specific and " +
	"data-driven.\n\n" +
	"## ⚠️ Caveats & Limitations\n" +
	"Note any data quality issues, missing values, scope limitations, " +
	"or assumptions made during the analysis.\n\n" +
	"FORMATTING RULES:\n" +
	"- Use Markdown headings (##), bold, bullet points, and tables.\n" +
	"- Keep the tone professional and objective.\n" +
	"- Prioritize clarity and readability.\n" +
	"- Every claim MUST be backed by the provided data.\n" +
	"- Do NOT invent data that is not present above.\n" +
	"- REMEMBER: Translate ALL section titles and ALL text to the " +
	"language of the user question.\n"

// DeepThinkReportPrompt builds the combined report prompt from both data
// passes.
func DeepThinkReportPrompt(question string, first, second *PhaseResponse, profile *Profile) string {
	block, instruction := profileParts(profile)
	return fmt.Sprintf(deepThinkReportTemplate,
		question, block,
		rawAnswer(first), vqlOrNA(first),
		rawAnswer(second), vqlOrNA(second),
		instruction)
}

// rawAnswer falls back to the serialized raw body when the upstream omitted
// the answer field, so later phases still see what came back.
func rawAnswer(p *PhaseResponse) string {
	if p == nil {
		return ""
	}
	if p.Answer != "" {
		return p.Answer
	}
	return fmt.Sprintf("%v", p.Raw)
}

func vqlOrNA(p *PhaseResponse) string {
	if p == nil || p.VQL == "" {
		return "N/A"
	}
	return p.VQL
}
