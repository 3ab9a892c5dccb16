package registry

// Stage ids of the built-in chain.
const (
	SourceDocuments = "source-documents"
	TechStack       = "tech-stack"
	DesignTemplate  = "design-template"
	Guidelines      = "guidelines"
	PlanConfig      = "plan-config"

	PRD                = "prd"
	Screens            = "screens"
	DesignSystem       = "design-system"
	Architecture       = "architecture"
	DataModel          = "data-model"
	APIContract        = "api-contract"
	SequenceDiagrams   = "sequence-diagrams"
	ImplementationPlan = "implementation-plan"
)

const endpointExpr = `\b(GET|POST|PUT|PATCH|DELETE)\s+(/[\w{}:./-]*[\w}/])`

func str(name string) Field { return Field{Name: name, Schema: Schema{Type: TypeString}} }

func integer(name string) Field { return Field{Name: name, Schema: Schema{Type: TypeInteger}} }

func boolean(name string) Field { return Field{Name: name, Schema: Schema{Type: TypeBoolean}} }

func enum(name string, values ...string) Field {
	return Field{Name: name, Schema: Schema{Type: TypeString, Enum: values}}
}

func stringList(name string) Field {
	return Field{Name: name, Schema: Schema{Type: TypeArray, Items: &Schema{Type: TypeString}}}
}

func object(name string, fields ...Field) Field {
	return Field{Name: name, Schema: Schema{Type: TypeObject, Fields: fields}}
}

func arrayOf(name string, fields ...Field) Field {
	return Field{Name: name, Schema: Schema{Type: TypeArray, Items: &Schema{Type: TypeObject, Fields: fields}}}
}

func anyObject(name string) Field { return Field{Name: name, Schema: Schema{Type: TypeObject}} }

func sections(headings ...string) []Section {
	out := make([]Section, len(headings))
	for i, h := range headings {
		out[i] = Section{Heading: h}
	}
	return out
}

func component(name string) Field {
	return object(name, str("description"), stringList("variants"), str("htmlExample"), str("cssExample"))
}

// DefaultStages returns a fresh copy of the built-in software delivery chain.
func DefaultStages() []Stage {
	return []Stage{
		{ID: SourceDocuments, Title: "Source Documents", Input: true},
		{ID: TechStack, Title: "Technology Stack", Input: true},
		{ID: DesignTemplate, Title: "Design Template", Input: true},
		{ID: Guidelines, Title: "Technical Guidelines", Input: true},
		{ID: PlanConfig, Title: "Plan Configuration", Input: true},
		{
			ID:       PRD,
			Title:    "Product Requirements Document",
			Required: []string{SourceDocuments},
			Contract: Contract{
				Kind: StructuredMarkdown,
				Patterns: []Pattern{
					{Name: "## EPIC:", Expr: `(?m)^## EPIC:\s*\S`},
					{Name: "### STORY:", Expr: `(?m)^### STORY:\s*\S`},
					{Name: "#### TASK:", Expr: `(?m)^#### TASK:\s*\S`},
				},
			},
		},
		{
			ID:       Screens,
			Title:    "Confirmed UI Screens",
			Required: []string{PRD},
			Contract: Contract{
				Kind: StrictJSON,
				Schema: &Schema{Type: TypeArray, Items: &Schema{Type: TypeObject, Fields: []Field{
					str("id"),
					str("name"),
					str("description"),
					enum("screenType", "dashboard", "list", "detail", "form", "modal",
						"settings", "auth", "report", "wizard", "empty"),
					str("epicName"),
					enum("complexity", "low", "medium", "high"),
					str("userRole"),
					str("notes"),
				}}},
				References: []Reference{{
					Name:   "epic",
					Source: PRD,
					From:   Extractor{Expr: `(?m)^## EPIC:\s*(?:\d+\.\s*)?(.+?)\s*$`},
					Uses:   Extractor{Path: "[].epicName"},
				}},
			},
		},
		{
			ID:       DesignSystem,
			Title:    "Design System",
			Required: []string{PRD},
			Optional: []string{DesignTemplate},
			Contract: Contract{
				Kind: StrictJSON,
				Schema: &Schema{Type: TypeObject, Fields: []Field{
					object("designTokens",
						anyObject("colors"),
						anyObject("typography"),
						anyObject("spacing"),
						anyObject("borderRadius"),
						anyObject("shadows"),
					),
					object("components",
						component("button"),
						component("alert"),
						component("badge"),
						component("input"),
						component("card"),
						component("table"),
						component("typography"),
					),
					str("explanation"),
				}},
			},
		},
		{
			ID:       Architecture,
			Title:    "Architecture Overview",
			Required: []string{TechStack, PRD, Screens},
			Optional: []string{DesignSystem, Guidelines},
			Contract: Contract{
				Kind:   StructuredMarkdown,
				Title:  "# Architecture Overview",
				Header: []string{"**Project:**", "**Stack:**"},
				Sections: sections(
					"## System Context",
					"## Application Layers",
					"## Key Integrations",
					"## Security Architecture",
					"## Deployment Architecture",
					"## Architecture Decisions",
				),
			},
		},
		{
			ID:       DataModel,
			Title:    "Data Model",
			Required: []string{TechStack, PRD, Screens, Architecture},
			Optional: []string{Guidelines},
			Contract: Contract{
				Kind:   StructuredMarkdown,
				Title:  "# Data Model",
				Header: []string{"**Project:**", "**Database:**"},
				Sections: sections(
					"## Entity Overview",
					"## Entity Definitions",
					"## Relationships",
					"## Indexes",
					"## Data Security & Compliance",
				),
			},
		},
		{
			ID:       APIContract,
			Title:    "API Contract",
			Required: []string{TechStack, PRD, Screens, Architecture, DataModel},
			Optional: []string{Guidelines},
			Contract: Contract{
				Kind:   StructuredMarkdown,
				Title:  "# API Contract",
				Header: []string{"**Project:**", "**API Style:**", "**Auth:**"},
				Sections: []Section{
					{Heading: "## API Overview"},
					{Heading: "## Authentication Endpoints"},
					{Heading: "## Core Resource Endpoints"},
					{Heading: "## Integration and External Endpoints", Optional: true},
					{Heading: "## Async and Event Endpoints", Optional: true},
					{Heading: "## Error Handling Standards"},
					{Heading: "## Key Design Decisions"},
				},
			},
		},
		{
			ID:       SequenceDiagrams,
			Title:    "Sequence Diagrams",
			Required: []string{TechStack, PRD, Screens, Architecture, DataModel, APIContract},
			Optional: []string{Guidelines},
			Contract: Contract{
				Kind:   StructuredMarkdown,
				Title:  "## Sequence Diagrams",
				Header: []string{"**Generated from:**"},
				Sections: []Section{
					{Heading: "### User Authentication Flow", Prefix: true},
					{Heading: "### Core Business Flow", Prefix: true},
					{Heading: "### Data Retrieval and Display Flow", Prefix: true},
					{Heading: "### External Integration Flow", Prefix: true, Optional: true},
					{Heading: "### Error and Validation Flow", Prefix: true, Optional: true},
				},
				Patterns: []Pattern{{Name: "mermaid diagrams", Fence: "mermaid", Min: 3}},
				References: []Reference{{
					Name:   "endpoint",
					Source: APIContract,
					From:   Extractor{Expr: endpointExpr},
					Uses:   Extractor{Expr: endpointExpr},
				}},
			},
		},
		{
			ID:       ImplementationPlan,
			Title:    "Implementation Plan",
			Required: []string{TechStack, PRD, Screens, Architecture, DataModel, APIContract, PlanConfig},
			Optional: []string{DesignSystem, SequenceDiagrams, Guidelines},
			Contract: Contract{
				Kind:   StrictJSON,
				Schema: planSchema(),
				References: []Reference{
					{
						Name: "dependsOn",
						From: Extractor{Path: "phases[].tasks[].id"},
						Uses: Extractor{Path: "phases[].tasks[].dependsOn[]"},
					},
					{
						Name: "blocks",
						From: Extractor{Path: "phases[].tasks[].id"},
						Uses: Extractor{Path: "phases[].tasks[].blocks[]"},
					},
				},
			},
		},
	}
}

func planSchema() *Schema {
	task := []Field{
		{Name: "id", Schema: Schema{Type: TypeString, Pattern: `^phase-\d+-task-\d+$`}},
		{Name: "taskNumber", Schema: Schema{Type: TypeString, Pattern: `^\d+\.\d+$`}},
		str("title"),
		enum("effort", "S", "M", "L"),
		enum("effortLabel", "Under 1 hour", "1-3 hours", "3-8 hours"),
		str("description"),
		stringList("filesToCreate"),
		stringList("filesToModify"),
		stringList("references"),
		stringList("acceptanceCriteria"),
		stringList("dependsOn"),
		stringList("blocks"),
	}
	scaffold := Field{Name: "scaffoldFiles", Schema: Schema{
		Type:     TypeArray,
		Nullable: true,
		Items: &Schema{Type: TypeObject, Fields: []Field{
			str("path"),
			{Name: "content", Schema: Schema{Type: TypeString, Nullable: true}},
			boolean("directory"),
		}},
	}}
	return &Schema{Type: TypeObject, Fields: []Field{
		str("projectName"),
		str("techStack"),
		str("targetConsumer"),
		str("deliveryStrategy"),
		boolean("includeScaffold"),
		str("generatedAt"),
		object("effortSummary",
			arrayOf("phases", str("phaseName"), integer("tasks"), integer("small"), integer("medium"), integer("large")),
			integer("totalTasks"),
			integer("totalSmall"),
			integer("totalMedium"),
			integer("totalLarge"),
		),
		str("claudeMdContent"),
		object("prerequisites",
			arrayOf("groups", str("id"), str("title"), stringList("items")),
		),
		arrayOf("phases",
			Field{Name: "id", Schema: Schema{Type: TypeString, Pattern: `^phase-\d+$`}},
			integer("phaseNumber"),
			str("title"),
			str("goal"),
			str("effortLabel"),
			arrayOf("tasks", task...),
			object("gate",
				str("whatYouShouldSee"),
				stringList("automatedChecks"),
				stringList("manualChecks"),
			),
		),
		scaffold,
	}}
}

// Default returns a registry holding the built-in chain.
func Default() *Registry {
	r, err := New(DefaultStages())
	if err != nil {
		panic("registry: built-in stages are invalid: " + err.Error())
	}
	return r
}
