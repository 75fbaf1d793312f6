package agent

// Role construction for the investigation pipeline. Instruction profiles are
// fixed at startup; the orchestrator treats every role as an opaque
// text-in/text-out capability.

// NewInvestigatorRole builds the web research role. It is the only role with
// live tool bindings: it can search and fetch pages while gathering data.
func NewInvestigatorRole(tools ...Tool) *Role {
	return &Role{
		Name: "Web Investigator",
		Instructions: `You are a web research specialist. Your job is to investigate URLs and gather data.

Use the available tools to:
1. Fetch and analyze the target URL's content
2. Search Google for relevant keywords to understand the competitive landscape
3. Examine top-ranking competitor pages
4. Identify content gaps and opportunities

Provide a comprehensive report of your findings.`,
		Tools: tools,
	}
}

// NewAnalyzerRole builds the pure text-in/text-out SEO analysis role.
func NewAnalyzerRole() *Role {
	return &Role{
		Name: "SEO Analyzer",
		Instructions: `You are an expert SEO analyst. Analyze the investigation report and data
to identify optimization opportunities. Focus on:
- Keyword rankings and gaps
- Competitor content strategies
- Technical SEO factors (titles, meta descriptions, content quality)
- Content quality indicators
- On-page SEO elements

Provide specific insights based on the data.`,
	}
}

// NewOptimizerRole builds the recommendation role. It may hand off to the
// analyzer when its own instructions call for a second opinion; that handoff
// is internal to the role and never surfaces as a pipeline step.
func NewOptimizerRole(analyzer *Role) *Role {
	r := &Role{
		Name: "SEO Optimizer",
		Instructions: `You are an expert SEO strategist. Based on analysis data, provide
specific, actionable optimization recommendations. Include:
- On-page SEO improvements (titles, meta descriptions, headings)
- Content optimization strategies
- Technical SEO enhancements
- Link building opportunities
- Competitive advantages to leverage

Provide clear, prioritized action items with specific examples.`,
	}
	if analyzer != nil {
		r.Handoffs = []*Role{analyzer}
	}
	return r
}

// NewPageFetcherRole builds the single-tool role behind the synchronous
// page-fetch endpoint.
func NewPageFetcherRole(fetchTool Tool) *Role {
	return &Role{
		Name: "Page Fetcher",
		Instructions: `You are a web page content fetcher. Your job is to retrieve the plain text
content of web pages using the fetch_url_content tool.

When given a URL:
1. Use the fetch_url_content tool to retrieve the page content
2. Return the plain text content cleanly formatted
3. If there's an error, report it clearly

Focus on extracting the main content without navigation, headers, or footers.`,
		Tools: []Tool{fetchTool},
	}
}
