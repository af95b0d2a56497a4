/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package judge

import (
	"chainguard.dev/evalpipe/dataset"
	"chainguard.dev/evalpipe/promptbuilder"
	"chainguard.dev/evalpipe/schema"
)

// severityFinding is the wire shape severity-vocabulary judges must return,
// reflected into a JSON schema that is embedded in their prompts.
type severityFinding struct {
	Severity    string `json:"severity" jsonschema:"required,description=Severity token from the vocabulary in the instructions"`
	Explanation string `json:"explanation" jsonschema:"description=What the issue is and where it occurs"`
}

// checkpointFinding is the wire shape the checkpoint-coverage judge returns,
// one entry per checkpoint.
type checkpointFinding struct {
	Checkpoint  string `json:"checkpoint" jsonschema:"description=The checkpoint being verified"`
	Result      string `json:"result" jsonschema:"required,description=correct when the response satisfies the checkpoint; incorrect otherwise"`
	Explanation string `json:"explanation" jsonschema:"description=Why the checkpoint passed or failed"`
}

func mustBindSchema(p *promptbuilder.Prompt, v any) *promptbuilder.Prompt {
	p, err := p.BindJSON("output_schema", schema.Reflect(v))
	if err != nil {
		panic(err)
	}
	return p
}

// Gate stage. The judge answers in free text but must end with the fixed
// marker line the pipeline pattern-matches.
const gateSystem = `You are a strict reviewer checking whether a model response follows the
instructions it was given. You only check instruction compliance: wrong
language, ignored constraints, refusals, or answering a different question.
You do not judge translation quality.`

var gatePrompt = promptbuilder.MustNewPrompt(`{{task_prompt}}

{{response}}

<instructions>
Decide whether the response violates the instructions in the task prompt.
Briefly explain what you checked. Your last line must be exactly one of:

Problem exists: yes
Problem exists: no
</instructions>`)

func bindGate(task *dataset.Task, response string) (*promptbuilder.Prompt, error) {
	p, err := gatePrompt.BindText("task_prompt", task.Prompt)
	if err != nil {
		return nil, err
	}
	return p.BindText("response", response)
}

// Dimension stage. Accuracy, fluency, and style share a user-prompt template;
// the per-dimension criteria and severity vocabulary live in the system
// prompts.
const accuracySystem = `You are a translation accuracy judge. Compare the response against the
source text and report every meaning error: mistranslation, omission,
addition, or inconsistent terminology. Severity vocabulary, from least to
most serious: "none", "minor", "major", "severe", "extremely severe". Report
a single finding with severity "none" when the response is fully accurate.`

const fluencySystem = `You are a fluency judge. Read only the response and report passages that are
ungrammatical, awkward, or unnatural in the target language. For each finding
set severity to "has issue"; report a single finding with severity "no issue"
when the response reads naturally throughout.`

const styleSystem = `You are a style-appropriateness judge. Judge whether the response's register,
tone, and word choice suit the source text's domain and audience. For each
finding set severity to "has issue"; report a single finding with severity
"no issue" when the style is appropriate throughout.`

var dimensionPrompt = mustBindSchema(promptbuilder.MustNewPrompt(`{{source_text}}

{{response}}

<instructions>
Evaluate the response per your criteria. Return a JSON array of findings, one
object per issue, matching this schema:

{{output_schema}}

Respond with only the JSON array, no additional text.
</instructions>`), &severityFinding{})

func bindDimension(task *dataset.Task, response string) (*promptbuilder.Prompt, error) {
	p, err := dimensionPrompt.BindText("source_text", task.OriText)
	if err != nil {
		return nil, err
	}
	return p.BindText("response", response)
}

const checkpointSystem = `You are a checkpoint verifier. The task author listed reference checkpoints
that a correct response must satisfy. Verify each checkpoint independently
against the response and report a verdict for every one.`

var checkpointPrompt = mustBindSchema(promptbuilder.MustNewPrompt(`{{source_text}}

{{response}}

{{checkpoints}}

<instructions>
Verify every checkpoint against the response. Return a JSON array with one
object per checkpoint, matching this schema:

{{output_schema}}

Respond with only the JSON array, no additional text.
</instructions>`), &checkpointFinding{})

func bindCheckpoint(task *dataset.Task, response string) (*promptbuilder.Prompt, error) {
	p, err := checkpointPrompt.BindText("source_text", task.OriText)
	if err != nil {
		return nil, err
	}
	if p, err = p.BindText("response", response); err != nil {
		return nil, err
	}
	return p.BindText("checkpoints", task.ReferenceList)
}

// Self-critique stage. The four initial judgments are rendered as YAML and
// the judge is asked for adjustment recommendations; its output is carried
// into the final stage as opaque context.
const critiqueSystem = `You are reviewing the work of four independent judges who evaluated the same
response. Look for findings that contradict each other, duplicate the same
underlying issue across dimensions, or misjudge severity. Recommend concrete
adjustments; do not re-judge the response from scratch.`

var critiquePrompt = promptbuilder.MustNewPrompt(`<accuracy_judgement>
{{accuracy_judgement}}
</accuracy_judgement>

<checkpoints_judgement>
{{checkpoints_judgement}}
</checkpoints_judgement>

<fluency_judgement>
{{fluency_judgement}}
</fluency_judgement>

<style_judgement>
{{style_judgement}}
</style_judgement>

<instructions>
Review the four judgments together and describe, as JSON, which findings
should be kept, dropped, or re-graded, and why.
</instructions>`)

func bindCritique(accuracy, checkpoints, fluency, style []Issue) (*promptbuilder.Prompt, error) {
	p, err := critiquePrompt.BindYAML("accuracy_judgement", accuracy)
	if err != nil {
		return nil, err
	}
	if p, err = p.BindYAML("checkpoints_judgement", checkpoints); err != nil {
		return nil, err
	}
	if p, err = p.BindYAML("fluency_judgement", fluency); err != nil {
		return nil, err
	}
	return p.BindYAML("style_judgement", style)
}

// Final stage. Each dimension judge revisits its own initial judgment in
// light of the critique and returns the authoritative finding list.
const accuracyFinalSystem = `You are finalizing an accuracy judgment. Apply the adjustment recommendations
to the initial findings where they are justified, keeping the severity
vocabulary: "none", "minor", "major", "severe", "extremely severe".`

const checkpointFinalSystem = `You are finalizing a checkpoint judgment. Apply the adjustment
recommendations to the initial verdicts where they are justified, keeping
one entry per checkpoint with result "correct" or "incorrect".`

const fluencyFinalSystem = `You are finalizing a fluency judgment. Apply the adjustment recommendations
to the initial findings where they are justified, keeping the severity
vocabulary: "no issue", "has issue".`

const styleFinalSystem = `You are finalizing a style-appropriateness judgment. Apply the adjustment
recommendations to the initial findings where they are justified, keeping the
severity vocabulary: "no issue", "has issue".`

var finalPrompt = mustBindSchema(promptbuilder.MustNewPrompt(`<initial_judgement>
{{initial_judgement}}
</initial_judgement>

{{adjustment}}

<instructions>
Produce the final finding list as a JSON array matching this schema:

{{output_schema}}

Respond with only the JSON array, no additional text.
</instructions>`), &severityFinding{})

var checkpointFinalPrompt = mustBindSchema(promptbuilder.MustNewPrompt(`<initial_judgement>
{{initial_judgement}}
</initial_judgement>

{{adjustment}}

<instructions>
Produce the final verdict list as a JSON array with one object per
checkpoint, matching this schema:

{{output_schema}}

Respond with only the JSON array, no additional text.
</instructions>`), &checkpointFinding{})

func bindFinal(template *promptbuilder.Prompt, initial []Issue, adjustment string) (*promptbuilder.Prompt, error) {
	p, err := template.BindJSON("initial_judgement", initial)
	if err != nil {
		return nil, err
	}
	return p.BindText("adjustment", adjustment)
}
