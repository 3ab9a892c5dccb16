package docs

var topics = []Topic{
	{
		Name:    "quickstart",
		Title:   "Quick Start",
		Summary: "Getting started with docchain",
		Content: topicQuickstart,
	},
	{
		Name:    "config",
		Title:   "Configuration Reference",
		Summary: "Config file schema, fields, and defaults",
		Content: topicConfig,
	},
	{
		Name:    "stages",
		Title:   "Stages and Contracts",
		Summary: "The built-in chain, contract kinds, and custom registries",
		Content: topicStages,
	},
	{
		Name:    "variables",
		Title:   "Template Variables",
		Summary: "Built-in vars, custom vars, and environment variables",
		Content: topicVariables,
	},
	{
		Name:    "execution",
		Title:   "Execution Model",
		Summary: "Scheduling, retries, staleness, watch mode, and resuming",
		Content: topicExecution,
	},
	{
		Name:    "artifacts",
		Title:   "Artifacts Directory",
		Summary: "Structure of .docchain/artifacts/ and what gets saved",
		Content: topicArtifacts,
	},
}

const topicQuickstart = `Quick Start
===========

1. Initialize a project:

    cd your-project
    docchain init

   This creates .docchain/config.yaml, an example prompt, and starter
   input files under inputs/.

2. Describe the product in inputs/source/ and fill in
   inputs/tech-stack.md and inputs/plan-config.md.

3. Preview the plan without executing:

    docchain run --dry-run

4. Run for real:

    docchain run

5. Check progress:

    docchain status

CLI Commands
------------

  docchain init                     Scaffold .docchain/ and inputs/
  docchain init --registry          Also write the stage chain for editing
  docchain run                      Generate every missing or stale artifact
  docchain run --dry-run            Preview the stage plan
  docchain run --watch              Regenerate when input files change
  docchain run --rerun STAGE        Regenerate STAGE even if fresh
  docchain run --input STAGE=PATH   Supply an input stage from a file or glob
  docchain run --fresh              Discard previous artifacts first
  docchain run --max-parallel N     Stages generated concurrently
  docchain run --verbose            Copy the run log to stderr
  docchain run --log-level LEVEL    Run log level (debug, info, warn, error)
  docchain status                   Show the stages of the latest run
  docchain graph                    Show the dependency graph as waves
  docchain validate STAGE FILE      Check a file against a stage's contract
  docchain doctor [STAGE]           Diagnose a failed stage
  docchain docs [TOPIC]             Show documentation
`

const topicConfig = `Configuration Reference
=======================

Projects are configured in .docchain/config.yaml.

Top-level fields
----------------

  name             string    Required. Project name.
  registry         string    Path to a custom stage registry (YAML). Default:
                             the built-in chain.
  invoker          object    Generation backend (see below).
  max-parallel     int       Stages generated concurrently. Default: 2.
  retries          object    Retry budgets per contract kind.
  inputs           map       Input stage id -> file path or glob.
  stages           map       Per-stage overrides (see below).
  state            object    backend: "file" (default) or "sqlite".
  vars             map       Custom variables, expanded in declaration order.

Invoker
-------

  type             string    "claude" (default) or "command".
  model            string    "opus", "sonnet" (default), or "haiku".
  run              string    Shell command for type command. The prompt is
                             written to its stdin; stdout is the output.
  timeout          int       Minutes per attempt. Default: 30 (claude),
                             10 (command).

Retries
-------

  structured-markdown   int   Extra attempts after a rejection. Default: 1.
  strict-json           int   Extra attempts after a rejection. Default: 2.

A budget of 0 means exactly one attempt.

Stage overrides
---------------

  prompt           string    Instruction file, relative to the project root.
                             The contract rules are always appended.
  model            string    Model for this stage only.
  timeout          int       Minutes per attempt for this stage only.
  retries          int       Retry budget for this stage only.

Validation Rules
----------------

- inputs may only name input stages, stages may only name generated ones.
- Prompt files must exist on disk.
- Model must be opus, sonnet, haiku, or empty.
- Custom vars cannot override built-in variables or repeat a name.

Example Config
--------------

  name: my-project
  invoker:
    type: claude
    model: sonnet
  max-parallel: 2
  inputs:
    source-documents: inputs/source/**/*.md
    tech-stack: inputs/tech-stack.md
    plan-config: inputs/plan-config.md
  stages:
    prd:
      prompt: .docchain/prompts/prd.md
      retries: 2
  vars:
    AUDIENCE: the engineering team
`

const topicStages = `Stages and Contracts
====================

A stage produces one artifact. Input stages are supplied from files;
every other stage is generated and must satisfy its output contract.

Built-in chain
--------------

  Inputs:  source-documents, tech-stack, design-template, guidelines,
           plan-config

  prd                   <- source-documents
  screens               <- prd
  design-system         <- prd (design-template optional)
  architecture          <- tech-stack, prd, screens
  data-model            <- ... architecture
  api-contract          <- ... data-model
  sequence-diagrams     <- ... api-contract
  implementation-plan   <- ... api-contract, plan-config
                           (sequence-diagrams optional)

Run 'docchain graph' for the exact waves.

Required and optional upstreams
-------------------------------

A stage starts only after every required upstream has an accepted
artifact. An optional upstream is included in the context when present
and never waited for. If a required upstream fails, the stage is blocked.

Contract kinds
--------------

  structured-markdown   Exact title line, header labels, ordered sections,
                        no placeholder bodies, and content patterns (for
                        example a minimum number of fenced diagrams).
                        A code fence wrapped around the whole document
                        is a defect.
  strict-json           One JSON document checked against a schema.
                        Missing fields, wrong types, enum misses, and
                        pattern misses are defects, and so is any text
                        before or after the JSON value. Extra keys are
                        allowed.

Either kind can carry references: every value the output uses (an
endpoint, an entity, a task id) must exist in an upstream artifact.

Custom registries
-----------------

  docchain init --registry

writes the built-in chain to .docchain/registry.yaml and points the config
at it. Edit stages there; the file is validated on load (unknown upstreams,
duplicate ids, and cycles are rejected).
`

const topicVariables = `Template Variables
==================

Prompt files named in stages.<id>.prompt are expanded before use.
Both $VAR and ${VAR} forms are recognized. Names that are not template
variables fall back to the process environment, or expand to nothing.

Built-in Variables
------------------

  $PROJECT_ROOT     Directory containing .docchain/
  $ARTIFACTS_DIR    .docchain/artifacts
  $RUN_ID           Identifier of the current run
  $STAGE            Stage id
  $STAGE_TITLE      Stage title
  $ATTEMPT          Attempt number, starting at 1

Custom Variables
----------------

Declared under vars in config.yaml. Later vars may reference earlier ones
and any built-in except the per-stage ones.

Environment Variables
---------------------

The backend process receives every variable as DOCCHAIN_<NAME>, plus
DOCCHAIN_MODEL. CLAUDECODE is removed from its environment.

Command invoker
---------------

In invoker.run, template variables ($STAGE, $ATTEMPT, custom vars) are
substituted before the command starts. Every other reference, such as
$DOCCHAIN_STAGE, $HOME or ${NAME:-default}, is left for the shell:

  invoker:
    type: command
    run: my-llm --stage $STAGE --log "$DOCCHAIN_ARTIFACTS_DIR/llm.log"
`

const topicExecution = `Execution Model
===============

Scheduling
----------

Stages run as soon as their required upstreams are accepted, up to
max-parallel at a time. Ties start in declaration order. A dependency
cycle is reported before anything runs.

Context
-------

Each stage sees its direct upstream artifacts only, in declaration order,
each under a ===== TITLE ===== label, followed by its instruction and
contract rules.

Retries
-------

An output that breaks its contract is retried with the full defect list
appended to the context, until the retry budget runs out. Backend
failures and timeouts are not retried: they fail the stage at once.
A failed stage blocks everything that requires it; independent stages
keep running.

Staleness and resuming
----------------------

Every accepted artifact records the fingerprints of the upstream artifacts
it consumed. On the next run, artifacts whose upstreams changed are
regenerated, and so is everything downstream of them whose own inputs end
up changing. Fresh artifacts are kept. Use --rerun to force a stage.

A regenerated artifact with identical content does not disturb its
dependents.

Watch mode
----------

  docchain run --watch

Keeps running after the chain settles and rereads input files when they
change, regenerating only what depends on them. Stop with Ctrl-C.

Interruption
------------

Ctrl-C abandons in-flight attempts. Nothing they produce is stored, and
the next run resumes from the last accepted artifacts.
`

const topicArtifacts = `Artifacts Directory
===================

  .docchain/artifacts/
    state.json              Run state (file backend)
    state.db                Run state (sqlite backend)
    timing.json             Per-stage start and end times
    metrics.prom            Prometheus text metrics of the last run
    docs/<stage>.md|json    Accepted artifacts
    prompts/<stage>-N.md    Prompt of attempt N
    outputs/<stage>-N.txt   Raw output of attempt N
    feedback/<stage>.md     Defects of the latest rejected output
    logs/run.log            Structured run log (JSON lines)
    logs/<stage>.log        Backend stderr per stage

Accepted artifacts are written atomically. 'docchain run --fresh' clears
the directory.
`
