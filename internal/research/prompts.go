package research

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompts holds the text templates used by every generation call. Fields
// left empty in an override file keep their defaults.
type Prompts struct {
	Clarify    string `yaml:"clarify"`
	Brief      string `yaml:"brief"`
	Supervisor string `yaml:"supervisor"`
	Report     string `yaml:"report"`
	Researcher string `yaml:"researcher"`
	Compress   string `yaml:"compress"`
	Summarize  string `yaml:"summarize"`
	Analyst    string `yaml:"analyst"`

	parsed map[string]*template.Template
}

// DefaultPrompts returns the built-in prompt set.
func DefaultPrompts() *Prompts {
	p := &Prompts{
		Clarify:    defaultClarifyPrompt,
		Brief:      defaultBriefPrompt,
		Supervisor: defaultSupervisorPrompt,
		Report:     defaultReportPrompt,
		Researcher: defaultResearcherPrompt,
		Compress:   defaultCompressPrompt,
		Summarize:  defaultSummarizePrompt,
		Analyst:    defaultAnalystPrompt,
	}
	if err := p.compile(); err != nil {
		panic(err)
	}
	return p
}

// LoadPromptsFromFile overlays a YAML prompt file on the defaults.
func LoadPromptsFromFile(path string) (*Prompts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open prompts %s: %w", path, err)
	}
	defer f.Close()
	p, err := LoadPrompts(f)
	if err != nil {
		return nil, fmt.Errorf("decode prompts %s: %w", path, err)
	}
	return p, nil
}

// LoadPrompts overlays YAML prompts read from r on the defaults.
func LoadPrompts(r io.Reader) (*Prompts, error) {
	var override Prompts
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&override); err != nil && err != io.EOF {
		return nil, err
	}
	p := DefaultPrompts()
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&p.Clarify, override.Clarify},
		{&p.Brief, override.Brief},
		{&p.Supervisor, override.Supervisor},
		{&p.Report, override.Report},
		{&p.Researcher, override.Researcher},
		{&p.Compress, override.Compress},
		{&p.Summarize, override.Summarize},
		{&p.Analyst, override.Analyst},
	} {
		if f.src != "" {
			*f.dst = f.src
		}
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prompts) compile() error {
	p.parsed = make(map[string]*template.Template, 8)
	for name, text := range map[string]string{
		"clarify":    p.Clarify,
		"brief":      p.Brief,
		"supervisor": p.Supervisor,
		"report":     p.Report,
		"researcher": p.Researcher,
		"compress":   p.Compress,
		"summarize":  p.Summarize,
		"analyst":    p.Analyst,
	} {
		tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("parse %s prompt: %w", name, err)
		}
		p.parsed[name] = tmpl
	}
	return nil
}

// Render executes the named prompt with data.
func (p *Prompts) Render(name string, data any) (string, error) {
	tmpl, ok := p.parsed[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return buf.String(), nil
}

const defaultClarifyPrompt = `These are the messages that have been exchanged so far with the user asking for the report:
<Messages>
{{.Messages}}
</Messages>

Today's date is {{.Date}}.

Assess whether you need to ask a clarifying question, or if the user has already provided enough information for you to start research.
IMPORTANT: If you can see in the messages history that you have already asked a clarifying question, you almost always do not need to ask another one. Only ask another question if ABSOLUTELY NECESSARY.

If there are acronyms, abbreviations, or unknown terms, ask the user to clarify.
If you need to ask a question, be concise and collect all necessary information in a single question.

Respond with:
- need_clarification: true if a question is required, otherwise false
- question: the question to ask the user (empty when no clarification is needed)
- verification: a short acknowledgement that you will start research (empty when clarification is needed)`

const defaultBriefPrompt = `You will be given a set of messages exchanged between yourself and the user.
Translate these messages into a detailed and concrete research brief that will guide the research.

The messages exchanged so far:
<Messages>
{{.Messages}}
</Messages>

Today's date is {{.Date}}.

Guidelines:
1. Include every detail the user supplied, phrased in the first person.
2. Where a dimension is unstated, mark it as open rather than inventing constraints.
3. List the key areas that must be covered as short topic strings.
4. Choose a research depth: shallow for quick overviews, moderate for balanced coverage, deep for exhaustive investigation.`

const defaultSupervisorPrompt = `You are a research supervisor. Your job is to conduct research by calling the ConductResearch tool, and to delegate computation to the DelegateToAnalyst tool. For context, today's date is {{.Date}}.

<Task>
Your focus is to call ConductResearch to conduct research against the overall research question passed in by the user.
When you are completely satisfied with the research findings returned from the tool calls, call the ResearchComplete tool to indicate that you are done with your research.
</Task>

<Research Brief>
{{.Brief}}
</Research Brief>

<Hard Limits>
- Bias towards a single sub-agent unless the request clearly benefits from parallelization.
- Stop when you can answer confidently. Do not keep delegating for perfection.
- You may issue at most {{.MaxIterations}} planning rounds in total.
- Use at most {{.MaxConcurrent}} parallel ConductResearch or DelegateToAnalyst calls per round.
</Hard Limits>

<Show Your Thinking>
Before you call ConductResearch, use think_tool to plan your approach. After each ConductResearch result, use think_tool to analyze what you found and what is missing.
</Show Your Thinking>`

const defaultReportPrompt = `Based on all the research conducted, create a comprehensive, well-structured answer to the overall research brief:
<Research Brief>
{{.Brief}}
</Research Brief>

Today's date is {{.Date}}.

Here are the findings from the research that you conducted:
<Findings>
{{.Findings}}
</Findings>

Write a detailed report that:
1. Is organized with proper headings (# for title, ## for sections, ### for subsections)
2. Includes specific facts and insights from the research
3. References relevant sources using [Title](URL) format
4. Ends with a ### Sources section listing every cited source with sequential numbers`

const defaultResearcherPrompt = `You are a research assistant conducting research on the user's input topic. For context, today's date is {{.Date}}.

<Available Tools>
1. search: web search for current information
2. read_file: read a local document by path
3. query_index: look up passages in the internal knowledge index
4. reflect: record a reflection on progress and decide next steps
</Available Tools>

<Instructions>
- Start with broader searches, then narrow down to fill gaps.
- After each search, pause and reflect: do I have enough to answer comprehensively?
- Stop when you can answer confidently or your last two searches returned similar information.
- Use at most 5 search calls for simple topics and at most 8 for complex ones.
</Instructions>`

const defaultCompressPrompt = `You are a research assistant that has conducted research on a topic by calling several tools. Your job is to clean up the findings while preserving all relevant statements and information. For context, today's date is {{.Date}}.

The research topic was:
<Topic>
{{.Topic}}
</Topic>

Clean up the findings above:
1. Keep every relevant fact verbatim; remove only obvious duplicates.
2. Include inline citations for each source.
3. End with a ### Sources section listing each source with its URL.`

const defaultSummarizePrompt = `You are tasked with summarizing the raw content of a webpage retrieved from a web search. Preserve the most important information from the original page. For context, today's date is {{.Date}}.

<Webpage Content>
{{.Content}}
</Webpage Content>

Return a summary of the main points and up to five key excerpts quoted verbatim.`

const defaultAnalystPrompt = `You are a data analyst. Today's date is {{.Date}}.
Solve the task by writing Python code and running it with the execute_python tool. Always print the values you need to see.
When you have the answer, reply with a concise natural-language explanation of the result and do not call any more tools.`
